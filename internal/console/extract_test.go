package console

import "testing"

func TestCleanConfig_StripsEchoedCommandAndANSI(t *testing.T) {
	raw := "show running-config\r\n\x1b[1mversion 15.2\x1b[0m\r\nhostname leaf1\r\n!\r\n"
	got := cleanConfig(raw, "show running-config")
	want := "version 15.2\nhostname leaf1\n!"
	if got != want {
		t.Fatalf("cleanConfig() = %q, want %q", got, want)
	}
}

func TestValidateConfig_AcceptsRecognizableConfig(t *testing.T) {
	config := "version 15.2\nhostname leaf1\ninterface Gi0/0\n!"
	ok, reason := validateConfig(config, "show running-config")
	if !ok {
		t.Fatalf("validateConfig() = false (%s), want true", reason)
	}
}

func TestValidateConfig_RejectsCLIErrorOutput(t *testing.T) {
	ok, _ := validateConfig("% Invalid input detected", "show running-cfg")
	if ok {
		t.Fatal("expected a CLI error marker to fail validation")
	}
}

func TestValidateConfig_RejectsEmptyOutput(t *testing.T) {
	ok, _ := validateConfig("   \n  ", "show running-config")
	if ok {
		t.Fatal("expected empty output to fail validation")
	}
}

func TestValidateConfig_RejectsOutputWithNoConfigMarkers(t *testing.T) {
	ok, _ := validateConfig("just some random banner text", "show running-config")
	if ok {
		t.Fatal("expected output with no config markers to fail validation")
	}
}

func TestPromptPatterns_FallsBackThroughVendorCiscoGeneric(t *testing.T) {
	patterns := promptPatterns(`leaf1#\s*$`)
	if len(patterns) != 3 {
		t.Fatalf("promptPatterns() returned %d patterns, want 3 (vendor, cisco-mode, generic)", len(patterns))
	}
	if !patterns[0].MatchString("leaf1#") {
		t.Fatal("expected the vendor pattern to match its own prompt")
	}
	if !patterns[1].MatchString("leaf1(config)#") {
		t.Fatal("expected the Cisco-mode fallback to match a config-mode prompt")
	}
	if !patterns[2].MatchString("anything>") {
		t.Fatal("expected the generic fallback to match any >/# prompt")
	}
}

func TestPromptPatterns_DedupesWhenVendorPatternMatchesCiscoFallback(t *testing.T) {
	patterns := promptPatterns(`\w+(\(.+\))?[>#]`)
	if len(patterns) != 2 {
		t.Fatalf("promptPatterns() returned %d patterns, want 2 after dedup", len(patterns))
	}
}
