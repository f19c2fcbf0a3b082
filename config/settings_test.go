package config

import "testing"

func TestConnectionSettings_Clone(t *testing.T) {
	orig := &ConnectionSettings{
		Name: "prod",
		Host: "db.example.com",
		Port: 27017,
		ReplicaSet: ReplicaSetSettings{
			SetName: "rs0",
			Members: []string{"rs1:27017", "rs2:27017"},
		},
		SSH: SshSettings{Enabled: true, Host: "bastion", UserName: "admin"},
	}

	clone := orig.Clone()
	if clone == orig {
		t.Fatal("clone must be a different pointer")
	}

	clone.Host = "127.0.0.1"
	clone.Port = 55000
	clone.ReplicaSet.Members[0] = "changed:1"
	clone.SSH.AskedPassword = "secret"

	if orig.Host != "db.example.com" || orig.Port != 27017 {
		t.Errorf("original target mutated: %s:%d", orig.Host, orig.Port)
	}
	if orig.ReplicaSet.Members[0] != "rs1:27017" {
		t.Error("replica set members must be deep-copied")
	}
	if orig.SSH.AskedPassword != "" {
		t.Error("ssh sub-settings must be copied")
	}
}

func TestConnectionSettings_IsReplicaSet(t *testing.T) {
	s := &ConnectionSettings{Host: "h", Port: 1}
	if s.IsReplicaSet() {
		t.Error("no members: not a replica set")
	}
	s.ReplicaSet.Members = []string{"a:1"}
	if !s.IsReplicaSet() {
		t.Error("with members: replica set")
	}
}

func TestConnectionSettings_TargetLabel(t *testing.T) {
	tests := []struct {
		name     string
		settings ConnectionSettings
		want     string
	}{
		{
			name:     "plain address",
			settings: ConnectionSettings{Host: "db.example.com", Port: 27017},
			want:     "db.example.com:27017",
		},
		{
			name: "replica set with members",
			settings: ConnectionSettings{
				Name:       "prod",
				ReplicaSet: ReplicaSetSettings{Members: []string{"rs1:27017", "rs2:27017"}},
			},
			want: "prod [Replica Set]rs1:27017",
		},
		{
			name: "replica set falls back to address name",
			settings: ConnectionSettings{
				Host: "h", Port: 1,
				ReplicaSet: ReplicaSetSettings{Members: []string{"rs1:27017"}},
			},
			want: "h:1 [Replica Set]rs1:27017",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.TargetLabel(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnectionSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConnectionSettings)
		wantErr bool
	}{
		{"valid", func(*ConnectionSettings) {}, false},
		{"missing host", func(s *ConnectionSettings) { s.Host = "" }, true},
		{"replica set without host", func(s *ConnectionSettings) {
			s.Host = ""
			s.ReplicaSet.Members = []string{"a:1"}
		}, false},
		{"bad member", func(s *ConnectionSettings) {
			s.ReplicaSet.Members = []string{"no-port"}
		}, true},
		{"port out of range", func(s *ConnectionSettings) { s.Port = 99999 }, true},
		{"ssh without host", func(s *ConnectionSettings) {
			s.SSH = SshSettings{Enabled: true, UserName: "u"}
		}, true},
		{"ssh without user", func(s *ConnectionSettings) {
			s.SSH = SshSettings{Enabled: true, Host: "bastion"}
		}, true},
		{"ssh publickey without key", func(s *ConnectionSettings) {
			s.SSH = SshSettings{Enabled: true, Host: "b", UserName: "u", AuthMethod: SshAuthPublicKey}
		}, true},
		{"ssl pem without file", func(s *ConnectionSettings) {
			s.SSL = SslSettings{Enabled: true, UsePemFile: true}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ConnectionSettings{Host: "db", Port: 27017}
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSshSettings_Secret(t *testing.T) {
	s := SshSettings{AuthMethod: SshAuthPassword, Password: "pw", Passphrase: "pp"}
	if got := s.Secret(); got != "pw" {
		t.Errorf("password method secret = %q, want pw", got)
	}

	s.AuthMethod = SshAuthPublicKey
	if got := s.Secret(); got != "pp" {
		t.Errorf("publickey method secret = %q, want pp", got)
	}

	s.AskedPassword = "asked"
	if got := s.Secret(); got != "asked" {
		t.Errorf("asked secret wins, got %q", got)
	}
}

func TestParseSSHSpec(t *testing.T) {
	tests := []struct {
		spec     string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"admin@bastion", "admin", "bastion", 22, false},
		{"bastion", "", "bastion", 22, false},
		{"bastion:2200", "", "bastion", 2200, false},
		{"a@b@c", "", "", 0, true},
		{"host:notaport", "", "", 0, true},
		{"host:99999", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			user, host, port, err := ParseSSHSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got %q %q %d, want %q %q %d",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ROBOMONGO_HOST", "envhost")
	t.Setenv("ROBOMONGO_PORT", "27018")
	t.Setenv("ROBOMONGO_SSH", "true")
	t.Setenv("ROBOMONGO_SSH_HOST", "bastion")
	t.Setenv("ROBOMONGO_SSH_KEY", "/keys/id_ed25519")
	t.Setenv("ROBOMONGO_REPLICA_MEMBERS", "a:1, b:2")

	var s ConnectionSettings
	LoadFromEnv(&s)

	if s.Host != "envhost" || s.Port != 27018 {
		t.Errorf("target = %s:%d", s.Host, s.Port)
	}
	if !s.SSH.Enabled || s.SSH.Host != "bastion" {
		t.Errorf("ssh = %+v", s.SSH)
	}
	if s.SSH.AuthMethod != SshAuthPublicKey {
		t.Error("key file should select publickey auth")
	}
	if len(s.ReplicaSet.Members) != 2 || s.ReplicaSet.Members[1] != "b:2" {
		t.Errorf("members = %v", s.ReplicaSet.Members)
	}
}

func TestLoadFromEnv_EmptyLeavesDefaults(t *testing.T) {
	s := ConnectionSettings{Host: "keep", Port: 1}
	LoadFromEnv(&s)
	if s.Host != "keep" || s.Port != 1 {
		t.Errorf("settings mutated: %+v", s)
	}
}
