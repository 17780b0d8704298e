package storagetest

import "testing"

func TestMemoryStore_Contract(t *testing.T) {
	RunKVContract(t, NewMemoryStore())
}
