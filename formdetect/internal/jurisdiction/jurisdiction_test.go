package jurisdiction

import "testing"

func TestFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"mytax.dc.gov", "DC"},
		{"www.mytax.dc.gov", "DC"},
		{"bizfileonline.sos.ca.gov", "CA"},
		{"sos.state.tx.us", "TX"},
		{"sos.texas.gov", "TX"},
		{"sos.wv.gov", "WV"},
		{"westvirginia.gov", "WV"},
		{"arkansas.gov", "AR"},
		{"sunbiz.org", "FL"},
		{"irs.gov", ""},
		{"example.com", ""},
		{"texasroadhouse.com", ""},
		{"localhost", ""},
	}
	for _, tt := range tests {
		if got := FromHost(tt.host); got != tt.want {
			t.Errorf("FromHost(%q): got %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestFromPath(t *testing.T) {
	tests := []struct {
		path  string
		query map[string][]string
		want  string
	}{
		{"/business/ny/register", nil, "NY"},
		{"/en/in/about", nil, ""},
		{"/form", map[string][]string{"state": {"dc"}}, "DC"},
		{"/form", map[string][]string{"state": {"zz"}}, ""},
		{"/blog/post", nil, ""},
	}
	for _, tt := range tests {
		if got := FromPath(tt.path, tt.query); got != tt.want {
			t.Errorf("FromPath(%q): got %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFromText(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Register a business in the District of Columbia", "DC"},
		{"Office of Tax and Revenue, Washington, DC 20024", "DC"},
		{"West Virginia Secretary of State", "WV"},
		{"State of Kansas and later Arkansas", "KS"},
		{"Florida Division of Corporations", "FL"},
		{"No jurisdiction here", ""},
	}
	for _, tt := range tests {
		if got := FromText(tt.text); got != tt.want {
			t.Errorf("FromText(%q): got %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestValidAndName(t *testing.T) {
	if !Valid("dc") || !Valid("TX") {
		t.Error("Valid: expected dc and TX to be valid")
	}
	if Valid("ZZ") {
		t.Error("Valid(ZZ): got true")
	}
	if got := Name("dc"); got != "District of Columbia" {
		t.Errorf("Name(dc): got %q", got)
	}
	if got := len(Codes()); got != 51 {
		t.Errorf("Codes: got %d, want 51", got)
	}
}
