package device

import "testing"

func TestMemCount(t *testing.T) {
	testServiceCount(t, prepareMem)
}

func TestMemDelete(t *testing.T) {
	testServiceDelete(t, prepareMem)
}

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
