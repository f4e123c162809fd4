package crypto

import (
	"bytes"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

var testPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("not-a-real-key-but-valid-pem")})

func TestEncryptDecryptPEM(t *testing.T) {
	blob, err := EncryptPEM(testPEM, "hunter2")
	if err != nil {
		t.Fatalf("EncryptPEM: %v", err)
	}
	if bytes.Contains(blob, []byte("PRIVATE KEY")) {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := DecryptPEM(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptPEM: %v", err)
	}
	if !bytes.Equal(got, testPEM) {
		t.Errorf("decrypted PEM differs")
	}

	if _, err := DecryptPEM(blob, "wrong"); err == nil {
		t.Error("expected error with wrong password")
	}
}

func TestEncryptPEM_Validation(t *testing.T) {
	if _, err := EncryptPEM(testPEM, ""); err == nil {
		t.Error("expected error for empty password")
	}
	if _, err := EncryptPEM([]byte("plain text"), "pw"); err == nil {
		t.Error("expected error for non-PEM input")
	}
}

func TestLoadPEM(t *testing.T) {
	dir := t.TempDir()

	plainPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(plainPath, testPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	blob, err := EncryptPEM(testPEM, "pw")
	if err != nil {
		t.Fatal(err)
	}
	encPath := filepath.Join(dir, "key.json")
	if err := os.WriteFile(encPath, blob, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("plaintext", func(t *testing.T) {
		got, err := LoadPEM(KeyConfig{PEMPath: plainPath, EncryptedKeyPath: encPath})
		if err != nil || !bytes.Equal(got, testPEM) {
			t.Fatalf("LoadPEM = %q, %v", got, err)
		}
	})
	t.Run("encrypted", func(t *testing.T) {
		got, err := LoadPEM(KeyConfig{EncryptedKeyPath: encPath, KeyPassword: "pw"})
		if err != nil || !bytes.Equal(got, testPEM) {
			t.Fatalf("LoadPEM = %q, %v", got, err)
		}
	})
	t.Run("unconfigured", func(t *testing.T) {
		cfg := KeyConfig{}
		if cfg.Configured() {
			t.Fatal("empty config reports configured")
		}
		if _, err := LoadPEM(cfg); err == nil {
			t.Fatal("expected error")
		}
	})
}
