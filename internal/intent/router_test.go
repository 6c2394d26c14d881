package intent

import "testing"

func TestRouter_Route(t *testing.T) {
	t.Parallel()
	r := NewRouter()

	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{"generate resignation", "ช่วยเจนไฟล์ลาออกให้หน่อย ชื่อ... รหัสนักศึกษา...", Generate},
		{"question about code", "RO.13 คืออะไร", Answer},
		{"draft request", "ร่างคำร้องลาป่วยให้หน่อยครับ", Generate},
		{"english upper case", "Please GENERATE the sick leave form", Generate},
		{"plain question", "อยากลาป่วยต้องทำยังไง", Answer},
		{"empty", "", Answer},
		{"whitespace", "   ", Answer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Route(tt.message); got != tt.want {
				t.Errorf("Route(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestRouter_Trigger(t *testing.T) {
	t.Parallel()
	r := NewRouter()

	got, ok := r.Trigger("ช่วยสร้างไฟล์คำร้องทั่วไปให้หน่อย")
	if !ok {
		t.Fatal("expected a trigger match")
	}
	if got != "สร้างไฟล์" {
		t.Errorf("trigger = %q, want %q", got, "สร้างไฟล์")
	}
}

func TestRouter_CustomTriggers(t *testing.T) {
	t.Parallel()
	r := NewRouter("  MAKE IT  ", "")

	if len(r.Triggers()) != 1 {
		t.Fatalf("expected blank triggers to be dropped, got %v", r.Triggers())
	}
	if r.Route("please make it now") != Generate {
		t.Error("custom trigger should be matched case-insensitively")
	}
	if r.Route("เจนไฟล์") != Answer {
		t.Error("custom triggers replace the defaults")
	}
}

func TestIntent_String(t *testing.T) {
	t.Parallel()
	if Generate.String() != "GENERATE" || Answer.String() != "ANSWER" {
		t.Errorf("unexpected names: %s, %s", Generate, Answer)
	}
}
