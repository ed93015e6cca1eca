package registry

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStaticDiscoverFiltersByBoard(t *testing.T) {
	reg := Static{
		{Addr: "10.0.0.1:5331", Board: "nrf5340dk", Serial: "A1"},
		{Addr: "10.0.0.2:5331", Board: "nrf5340dk", Serial: "A2"},
		{Addr: "10.0.0.3:5331", Board: "nrf52840dongle", Serial: "B1"},
	}

	instances, err := reg.Discover("nrf5340dk")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}
	for _, inst := range instances {
		if inst.Board != "nrf5340dk" {
			t.Errorf("wrong board in results: %+v", inst)
		}
	}

	instances, err = reg.Discover("unknown-board")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Fatalf("expect no instances, got %d", len(instances))
	}
}

// Requires a reachable etcd; set COPRO_RPC_ETCD to run, e.g.
// COPRO_RPC_ETCD=localhost:2379 go test ./registry/
func TestEtcdRegisterAndDiscover(t *testing.T) {
	endpoint := os.Getenv("COPRO_RPC_ETCD")
	if endpoint == "" {
		t.Skip("COPRO_RPC_ETCD not set")
	}

	reg, err := NewEtcdRegistry([]string{endpoint}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	inst1 := BridgeInstance{Addr: "127.0.0.1:5331", Board: "nrf5340dk", Serial: "A1", Weight: 10}
	inst2 := BridgeInstance{Addr: "127.0.0.1:5332", Board: "nrf5340dk", Serial: "A2", Weight: 5}

	if err := reg.Register("nrf5340dk", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("nrf5340dk", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover("nrf5340dk")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister("nrf5340dk", inst1.Addr); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover("nrf5340dk")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, instances[0].Addr)
	}

	reg.Deregister("nrf5340dk", inst2.Addr)
}
