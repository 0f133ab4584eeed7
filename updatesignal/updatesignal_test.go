package updatesignal

import "testing"

type fakeRegister struct {
	value   uint32
	written []uint32
}

func (f *fakeRegister) ReadRegister() uint32 { return f.value }
func (f *fakeRegister) WriteRegister(v uint32) {
	f.written = append(f.written, v)
	f.value = v
}

func TestRegister_DecodesEachSentinel(t *testing.T) {
	cases := []struct {
		name string
		reg  uint32
		want UpdatePlan
	}{
		{"none", registerNone, UpdatePlan{Kind: None}},
		{"any", registerAny, UpdatePlan{Kind: Any}},
		{"serial", registerSerial, UpdatePlan{Kind: Serial}},
		{"index", 3, UpdatePlan{Kind: Index, BankIndex: 3}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			io := &fakeRegister{value: c.reg}
			plan, err := Register{IO: io}.Read()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if plan != c.want {
				t.Fatalf("plan = %+v, want %+v", plan, c.want)
			}
		})
	}
}

func TestRegister_ClearsAfterRead(t *testing.T) {
	io := &fakeRegister{value: registerAny}
	if _, err := (Register{IO: io}).Read(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if io.value != registerNone {
		t.Fatalf("register not cleared after read: %#x", io.value)
	}
}

func TestNull_AlwaysNone(t *testing.T) {
	plan, err := Null{}.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Kind != None {
		t.Fatalf("plan.Kind = %v, want None", plan.Kind)
	}
}
