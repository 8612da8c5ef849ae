package efinanceira

import "fmt"

// pesos del módulo 11 para los dos dígitos verificadores del CNPJ.
var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ valida los dígitos verificadores de un CNPJ (con o sin máscara).
// cnpj puede ser "11.222.333/0001-81" o "11222333000181".
func ValidateCNPJ(cnpj string) error {
	digits := extractDigits(cnpj)
	if len(digits) != 14 {
		return fmt.Errorf("efinanceira: CNPJ debe tener 14 dígitos, se encontraron %d", len(digits))
	}
	if allEqual(digits) {
		return fmt.Errorf("efinanceira: CNPJ inválido %s", string(digits))
	}
	dv1, dv2, err := ComputeCNPJCheckDigits(string(digits[:12]))
	if err != nil {
		return err
	}
	if digits[12] != dv1 || digits[13] != dv2 {
		return fmt.Errorf("efinanceira: dígitos verificadores del CNPJ inválidos: esperado %c%c, recibido %c%c",
			dv1, dv2, digits[12], digits[13])
	}
	return nil
}

// ComputeCNPJCheckDigits calcula los dos dígitos verificadores para la base de 12 dígitos.
func ComputeCNPJCheckDigits(base string) (byte, byte, error) {
	digits := extractDigits(base)
	if len(digits) < 12 {
		return 0, 0, fmt.Errorf("efinanceira: se requieren 12 dígitos para calcular el DV del CNPJ, se encontraron %d", len(digits))
	}
	digits = digits[:12]
	dv1 := mod11(digits, cnpjWeights1[:])
	dv2 := mod11(append(append([]byte{}, digits...), dv1), cnpjWeights2[:])
	return dv1, dv2, nil
}

func mod11(digits []byte, weights []int) byte {
	var sum int
	for i, d := range digits {
		sum += int(d-'0') * weights[i]
	}
	remainder := sum % 11
	if remainder < 2 {
		return '0'
	}
	return byte('0' + (11 - remainder))
}

func allEqual(digits []byte) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, byte(r))
		}
	}
	return out
}
