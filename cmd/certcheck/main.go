// Command certcheck diagnostica el certificado de firma configurado (A1 en archivo
// o A3 en token PKCS#11) y verifica documentos e-Financeira firmados.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/efinanceira-api/internal/infrastructure/certificate"
	"github.com/jhoicas/efinanceira-api/internal/infrastructure/efinanceira/signer"
	"github.com/jhoicas/efinanceira-api/pkg/config"
	"github.com/jhoicas/efinanceira-api/pkg/efinanceira"
)

type options struct {
	certPath   string
	keyPath    string
	password   string
	thumbprint string
	pkcs11Lib  string
	pin        string
	tokenLabel string
	trustedCAs string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	// Los valores por defecto salen de EFIN_* / .env, igual que la API.
	if cfg, err := config.Load(); err == nil {
		opts.certPath = cfg.EFin.CertPath
		opts.keyPath = cfg.EFin.CertKeyPath
		opts.password = cfg.EFin.CertPassword
		opts.thumbprint = cfg.EFin.CertThumbprint
		opts.pkcs11Lib = cfg.EFin.PKCS11Library
		opts.pin = cfg.EFin.PKCS11PIN
		opts.tokenLabel = cfg.EFin.PKCS11TokenLabel
		opts.trustedCAs = cfg.EFin.TrustedCAs
	}

	root := &cobra.Command{
		Use:           "certcheck",
		Short:         "Diagnóstico del certificado de firma e-Financeira",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return inspect(cmd, opts)
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&opts.certPath, "cert", opts.certPath, "certificado .p12/.pfx o .pem")
	f.StringVar(&opts.keyPath, "key", opts.keyPath, "llave .pem (si --cert es solo el certificado)")
	f.StringVar(&opts.password, "password", opts.password, "contraseña del .p12")
	f.StringVar(&opts.thumbprint, "thumbprint", opts.thumbprint, "SHA-1 del certificado en el token")
	f.StringVar(&opts.pkcs11Lib, "pkcs11", opts.pkcs11Lib, "módulo PKCS#11 del token A3")
	f.StringVar(&opts.pin, "pin", opts.pin, "PIN del token")
	f.StringVar(&opts.tokenLabel, "token-label", opts.tokenLabel, "etiqueta del token (vacío = primero)")
	f.StringVar(&opts.trustedCAs, "trusted-cas", opts.trustedCAs, "PEM con ACs de confianza para verify")

	root.AddCommand(&cobra.Command{
		Use:   "verify <archivo.xml>",
		Short: "Verifica la firma de un documento o lote firmado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verify(cmd, opts, args[0])
		},
	})
	return root
}

func inspect(cmd *cobra.Command, opts *options) error {
	cert, closeStore, err := load(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return fmt.Errorf("parsear certificado: %w", err)
		}
	}
	now := time.Now()
	fmt.Fprintf(out, "Sujeto:      %s\n", leaf.Subject)
	fmt.Fprintf(out, "Emisor:      %s\n", leaf.Issuer)
	fmt.Fprintf(out, "Serie:       %s\n", leaf.SerialNumber)
	fmt.Fprintf(out, "Thumbprint:  %s\n", certificate.Thumbprint(leaf))
	fmt.Fprintf(out, "Vigencia:    %s → %s\n", leaf.NotBefore.Format(time.DateOnly), leaf.NotAfter.Format(time.DateOnly))
	switch {
	case now.Before(leaf.NotBefore):
		fmt.Fprintln(out, "Estado:      aún no vigente")
	case now.After(leaf.NotAfter):
		fmt.Fprintln(out, "Estado:      VENCIDO")
	default:
		fmt.Fprintf(out, "Estado:      vigente (%d días restantes)\n", int(leaf.NotAfter.Sub(now).Hours()/24))
	}
	for i, der := range cert.Certificate[1:] {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "Cadena[%d]:   %s\n", i+1, c.Subject)
	}

	// Firma de prueba: confirma que la llave privada corresponde y firma.
	sample := []byte(`<eFinanceira><evtTeste Id="ID1"/></eFinanceira>`)
	sampleOpts := efinanceira.NewSignOptions("evtTeste", "ID1")
	sampleOpts.Certificate = cert
	signed, err := signer.NewDigitalSignatureService(nil).Sign(sample, sampleOpts)
	if err != nil {
		return fmt.Errorf("firma de prueba: %w", err)
	}
	res := signer.NewSignatureVerifier().VerifyDetailed(signed)
	fmt.Fprintf(out, "Firma:       %s\n", res.Status)
	return nil
}

func verify(cmd *cobra.Command, opts *options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var trusted []*x509.Certificate
	if opts.trustedCAs != "" {
		if trusted, err = certificate.LoadCertificates(opts.trustedCAs); err != nil {
			return err
		}
	}
	res := signer.NewSignatureVerifier(trusted...).VerifyDetailed(data)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Estado:  %s\n", res.Status)
	if res.Detail != "" {
		fmt.Fprintf(out, "Detalle: %s\n", res.Detail)
	}
	if res.Signer != nil {
		fmt.Fprintf(out, "Firmante: %s (%s)\n", res.Signer.Subject, certificate.Thumbprint(res.Signer))
	}
	if !res.Valid {
		return fmt.Errorf("firma inválida: %s", res.Status)
	}
	return nil
}

// load obtiene el certificado del token (si hay módulo PKCS#11) o del archivo.
func load(opts *options) (*tls.Certificate, func(), error) {
	if opts.pkcs11Lib != "" {
		store, err := certificate.OpenPKCS11Store(certificate.PKCS11Config{
			Library:    opts.pkcs11Lib,
			PIN:        opts.pin,
			TokenLabel: opts.tokenLabel,
		})
		if err != nil {
			return nil, nil, err
		}
		cert, err := store.Find(opts.thumbprint)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return cert, func() { _ = store.Close() }, nil
	}
	if opts.certPath == "" {
		return nil, nil, fmt.Errorf("indique --cert o --pkcs11")
	}
	cert, err := certificate.LoadFromFile(opts.certPath, opts.keyPath, opts.password)
	if err != nil {
		return nil, nil, err
	}
	return cert, func() {}, nil
}
