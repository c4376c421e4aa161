package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestNextIDUniqueUnderConcurrency(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NextID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode("VIP", 10)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !strings.HasPrefix(code, "VIP") || len(code) != 13 {
		t.Fatalf("unexpected code %q", code)
	}
	for _, r := range code[3:] {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("code %q contains %q outside the alphabet", code, r)
		}
	}

	if _, err := GenerateCode("", 0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestInitRejectsOutOfRangeWorker(t *testing.T) {
	if err := Init(maxWorkerID + 1); err == nil {
		t.Fatal("expected error for worker id above range")
	}
}
