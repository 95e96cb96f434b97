package ssl

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var defaultValidFor = 365 * 24 * time.Hour

// EnsureCertificate makes sure a certificate and key exist at certFile and
// keyFile, creating a self-signed pair for hosts if either is missing.
func EnsureCertificate(certFile, keyFile, hosts string) error {
	_, certErr := os.Stat(certFile)
	_, keyErr := os.Stat(keyFile)
	if certErr == nil && keyErr == nil {
		return nil
	}
	if !os.IsNotExist(certErr) && certErr != nil {
		return certErr
	}
	if !os.IsNotExist(keyErr) && keyErr != nil {
		return keyErr
	}

	log.Printf("Generating self-signed certificate for %s\n", hosts)
	certPEM, keyPEM, err := GenerateCertificate(hosts, pkix.Name{Organization: []string{"tasklane"}}, nil)
	if err != nil {
		return err
	}
	for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	if err := ioutil.WriteFile(certFile, certPEM, 0644); err != nil {
		return err
	}
	return ioutil.WriteFile(keyFile, keyPEM, 0600)
}

// GenerateCertificate creates a self-signed ECDSA P-256 certificate for the
// given comma-separated list of hosts and returns the certificate PEM bytes
// and the PKCS8 private key PEM bytes.
func GenerateCertificate(hosts string, subject pkix.Name, validFor *time.Duration) ([]byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %v", err)
	}

	if validFor == nil {
		validFor = &defaultValidFor
	}
	notBefore := time.Now()
	notAfter := notBefore.Add(*validFor)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      subject,
		NotBefore:    notBefore,
		NotAfter:     notAfter,

		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %v", err)
	}

	certOut, keyOut := new(bytes.Buffer), new(bytes.Buffer)
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode certificate: %v", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to marshal private key: %v", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode private key: %v", err)
	}

	return certOut.Bytes(), keyOut.Bytes(), nil
}
