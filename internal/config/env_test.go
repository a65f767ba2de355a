package config

import (
	"strings"
	"testing"
)

func TestParseEnvironment(t *testing.T) {
	e, err := parseEnvironment(map[string]string{
		"MERAKI_DASHBOARD_API_KEY": "key-1234",
		"MERAKITK_PSK":             "first-pass::second-pass",
		"MERAKITK_SMTP":            "mail.example.com::587::STARTTLS::bot::hunter2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.APIKey != "key-1234" || e.PSK != "first-pass::second-pass" || !strings.HasPrefix(e.SMTP, "mail.example.com") {
		t.Errorf("environment = %+v", e)
	}
}

func TestApplySMTPFieldByField(t *testing.T) {
	e := Environment{SMTP: "mail.example.com::587::STARTTLS::bot::hunter2"}

	smtp := SMTPConfig{Server: "relay.local", User: "me"}
	if err := e.ApplySMTP(&smtp); err != nil {
		t.Fatal(err)
	}

	want := SMTPConfig{Server: "relay.local", Port: 587, Mode: "STARTTLS", User: "me", Password: "hunter2"}
	if smtp != want {
		t.Errorf("smtp = %+v, want %+v", smtp, want)
	}
}

func TestApplySMTPShortTuple(t *testing.T) {
	e := Environment{SMTP: "mail.example.com"}
	var smtp SMTPConfig
	if err := e.ApplySMTP(&smtp); err != nil {
		t.Fatal(err)
	}
	if smtp.Server != "mail.example.com" || smtp.Port != 0 || smtp.User != "" {
		t.Errorf("smtp = %+v", smtp)
	}
}

func TestApplySMTPBadPort(t *testing.T) {
	e := Environment{SMTP: "mail.example.com::smtp"}
	var smtp SMTPConfig
	if err := e.ApplySMTP(&smtp); err == nil {
		t.Error("expected port error")
	}
}

func TestResolveSMTP(t *testing.T) {
	tests := []struct {
		name    string
		env     Environment
		in      SMTPConfig
		want    SMTPConfig
		wantErr bool
	}{
		{
			name: "defaults to TLS",
			in:   SMTPConfig{Server: "mail.example.com"},
			want: SMTPConfig{Server: "mail.example.com", Mode: SMTPModeTLS, Port: 465},
		},
		{
			name: "plain default port",
			in:   SMTPConfig{Server: "mail.example.com", Mode: SMTPModePlain},
			want: SMTPConfig{Server: "mail.example.com", Mode: SMTPModePlain, Port: 25},
		},
		{
			name: "from environment",
			env:  Environment{SMTP: "mail.example.com::2525::SMTP::::"},
			want: SMTPConfig{Server: "mail.example.com", Mode: SMTPModePlain, Port: 2525},
		},
		{
			name:    "no server",
			wantErr: true,
		},
		{
			name:    "bad mode",
			env:     Environment{SMTP: "mail.example.com::25::SSL"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.env.ResolveSMTP(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
