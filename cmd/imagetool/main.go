// Command imagetool appends the MAGIC sentinel and integrity trailer a
// flashed bank needs to be recognized by image.CRCReader/image.ECDSAReader
// (spec component C2), turning a raw firmware binary into a bootable
// image file. Grounded on the teacher's cmd/cli firmware-push tool, which
// used the same flag-driven, read-whole-file-then-write-result shape for
// its own OTA push; rebuilt here on github.com/spf13/pflag, the flag
// library the rest of the example pack reaches for over stdlib flag.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/spf13/pflag"

	"openenterprise/loadstone/image"
)

func main() {
	var (
		in      = pflag.StringP("in", "i", "", "path to the raw firmware binary")
		out     = pflag.StringP("out", "o", "", "path to write the bootable image to")
		golden  = pflag.Bool("golden", false, "mark this image as the golden recovery image")
		mode    = pflag.String("mode", "crc", "integrity mode: crc or ecdsa")
		keyPath = pflag.String("key", "", "SEC 1 PEM EC private key (EC PRIVATE KEY block), required when --mode=ecdsa")
	)
	pflag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "imagetool: --in and --out are required")
		pflag.Usage()
		os.Exit(2)
	}

	payload, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "imagetool: reading input:", err)
		os.Exit(1)
	}

	built, err := build(payload, *golden, *mode, *keyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "imagetool:", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, built, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "imagetool: writing output:", err)
		os.Exit(1)
	}
}

// build lays out [payload][golden marker?][MAGIC][trailer], matching the
// exact byte order image.CRCReader/image.ECDSAReader scan for (spec.md
// §3's "MAGIC precedes the fixed-size trailer" invariant).
func build(payload []byte, golden bool, mode, keyPath string) ([]byte, error) {
	var body []byte
	body = append(body, payload...)
	if golden {
		body = append(body, []byte(image.GoldenMarker)...)
	}
	body = append(body, image.Magic[:]...)

	switch mode {
	case "crc":
		trailer := crcTrailer(body)
		return append(body, trailer[:]...), nil
	case "ecdsa":
		if keyPath == "" {
			return nil, fmt.Errorf("--key is required when --mode=ecdsa")
		}
		trailer, err := ecdsaTrailer(payload, keyPath)
		if err != nil {
			return nil, err
		}
		return append(body, trailer[:]...), nil
	default:
		return nil, fmt.Errorf("unknown --mode %q, want crc or ecdsa", mode)
	}
}

// crcTrailer computes the CRC32/IEEE checksum over body (payload, golden
// marker if present, and MAGIC), matching image.CRCReader's digest exactly.
func crcTrailer(body []byte) [image.CRCTrailerSize]byte {
	sum := crc32.ChecksumIEEE(body)
	var trailer [image.CRCTrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], sum)
	return trailer
}

// ecdsaTrailer signs sha256(payload) with the PEM-encoded P-256 private
// key at keyPath, returning the fixed-width r||s trailer image.ECDSAReader
// expects, with no ASN.1 DER wrapping.
func ecdsaTrailer(payload []byte, keyPath string) ([image.SignatureSize]byte, error) {
	var trailer [image.SignatureSize]byte

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return trailer, fmt.Errorf("reading key: %w", err)
	}
	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return trailer, fmt.Errorf("key file does not contain a PEM block")
	}
	priv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return trailer, fmt.Errorf("parsing EC private key: %w", err)
	}
	if priv.Curve != elliptic.P256() {
		return trailer, fmt.Errorf("key is not on the P-256 curve")
	}

	sum := sha256.Sum256(payload)
	r, s, err := ecdsa.Sign(rand.Reader, priv, sum[:])
	if err != nil {
		return trailer, fmt.Errorf("signing payload: %w", err)
	}

	half := image.SignatureSize / 2
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(trailer[half-len(rBytes):half], rBytes)
	copy(trailer[image.SignatureSize-len(sBytes):], sBytes)
	return trailer, nil
}
