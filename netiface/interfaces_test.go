package netiface

import "testing"

func TestEnumerateLocalAddresses(t *testing.T) {
	addrs, err := EnumerateLocalAddresses()
	if err != nil {
		t.Fatalf("EnumerateLocalAddresses() failed: %v", err)
	}
	// A host always has at least a loopback interface.
	if len(addrs) == 0 {
		t.Skip("no interfaces reported by the host running this test")
	}
}

func TestLocalAddressClassification(t *testing.T) {
	addrs, err := EnumerateLocalAddresses()
	if err != nil {
		t.Fatalf("EnumerateLocalAddresses() failed: %v", err)
	}
	for _, a := range addrs {
		if a.IP == nil {
			t.Errorf("LocalAddress on %s has nil IP", a.InterfaceName)
		}
	}
}
