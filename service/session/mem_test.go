package session

import "testing"

func TestMemPut(t *testing.T) {
	testServicePut(t, prepareMem)
}

func TestMemQuery(t *testing.T) {
	testServiceQuery(t, prepareMem)
}

func prepareMem(t *testing.T, namespace string) Service {
	s := MemService()

	if err := s.Teardown(namespace); err != nil {
		t.Fatal(err)
	}

	return s
}
