package enforcement

import (
	"crypto/sha256"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEmbeddedDataIntegrity(t *testing.T) {
	// 1. Ensure the embedded slice is not empty
	if len(ReplyGuardPatterns) == 0 {
		t.Fatal("Embedded guard data is empty. Did the build fail to include 'reply_guard_patterns.yaml'?")
	}

	// 2. Ensure it is valid YAML
	var dump map[string]interface{}
	if err := yaml.Unmarshal(ReplyGuardPatterns, &dump); err != nil {
		t.Fatalf("Embedded data is not valid YAML: %v", err)
	}

	// 3. Ensure we can calculate a hash for the verify tooling
	hash := sha256.Sum256(ReplyGuardPatterns)
	if len(hash) != 32 {
		t.Errorf("Hash calculation failed, expected 32 bytes, got %d", len(hash))
	}
	t.Logf("Current guard battery hash: %x", hash)
}
