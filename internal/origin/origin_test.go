package origin

import "testing"

func TestValidate(t *testing.T) {
	valid := []string{
		"https://ap.example",
		"https://ap.example.com",
		"https://ap.example.com:8443",
		"https://sub.sub2.example.co",
	}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{
		"https://ap.example/",
		"https://ap.example/path",
		"https://ap.example?query=1",
		"https://AP.EXAMPLE",
		"http://ap.example",
		"ap.example",
		"https://ap",
		"https://ap.e",
		"https://ap.example:",
		"https://ap.example:abc",
		"",
	}
	for _, s := range invalid {
		if err := Validate(s); err == nil {
			t.Errorf("Validate(%q) = nil, want error", s)
		}
	}
}

func TestIdempotence(t *testing.T) {
	o := "https://ap.example.com"
	if !IsValid(o) {
		t.Fatalf("expected %q to be valid", o)
	}
	if IsValid(o + "/") {
		t.Fatalf("expected %q to be invalid", o+"/")
	}
}
