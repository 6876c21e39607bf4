package process

import (
	"testing"
	"time"
)

func TestParseOperation(t *testing.T) {
	if op, err := ParseOperation(""); err != nil || op != OpGeneric {
		t.Errorf("ParseOperation(\"\") = %s, %v", op, err)
	}
	if op, err := ParseOperation(" Prove "); err != nil || op != OpProve {
		t.Errorf("ParseOperation(Prove) = %s, %v", op, err)
	}
	if _, err := ParseOperation("deploy"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestTimeouts_ForFallsBack(t *testing.T) {
	var empty Timeouts
	if got := empty.For(OpProve); got != 2*time.Hour {
		t.Errorf("prove default = %s", got)
	}
	if got := empty.For(Operation("unknown")); got != 10*time.Minute {
		t.Errorf("unknown op = %s, want generic default", got)
	}
	custom := Timeouts{OpGeneric: time.Minute}
	if got := custom.For(Operation("unknown")); got != time.Minute {
		t.Errorf("unknown op = %s, want configured generic", got)
	}
}

func TestTimeouts_MergeIgnoresNonPositive(t *testing.T) {
	base := DefaultTimeouts()
	merged := base.Merge(Timeouts{OpBuild: time.Minute, OpVerify: 0})
	if merged[OpBuild] != time.Minute {
		t.Errorf("build = %s", merged[OpBuild])
	}
	if merged[OpVerify] != 5*time.Minute {
		t.Errorf("verify = %s, want default kept", merged[OpVerify])
	}
	if base[OpBuild] != 30*time.Minute {
		t.Error("Merge modified its receiver")
	}
}

func TestTimeoutsFromEnv(t *testing.T) {
	env := map[string]string{
		"ZISK_DEV_TIMEOUT_PROVE":  "90m",
		"ZISK_DEV_TIMEOUT_VERIFY": " ",
	}
	got, err := TimeoutsFromEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err != nil {
		t.Fatalf("TimeoutsFromEnv: %v", err)
	}
	if got[OpProve] != 90*time.Minute {
		t.Errorf("prove = %s", got[OpProve])
	}
	if _, ok := got[OpVerify]; ok {
		t.Error("blank value should be ignored")
	}

	env["ZISK_DEV_TIMEOUT_BUILD"] = "-1s"
	if _, err := TimeoutsFromEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestOperationForSubcommand(t *testing.T) {
	tests := map[string]Operation{
		"build":     OpBuild,
		"prove":     OpProve,
		"verify":    OpVerify,
		"run":       OpExecute,
		"rom-setup": OpSetup,
		"sdk":       OpGeneric,
	}
	for sub, want := range tests {
		if got := OperationForSubcommand(sub); got != want {
			t.Errorf("OperationForSubcommand(%q) = %s, want %s", sub, got, want)
		}
	}
}
