package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDescriptor_Valid(t *testing.T) {
	d := DefaultDescriptor()
	require.NoError(t, d.Validate())
	assert.Equal(t, "/app/app", d.AppDest())
	assert.Equal(t, "8000/tcp", d.ExposedPort())
	assert.Equal(t, "1000:1000", d.Identity.Owner())
}

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(d *Descriptor)
		target error
	}{
		{name: "root identity", modify: func(d *Descriptor) { d.Identity.UID = 0 }, target: ErrPrivilegedIdentity},
		{name: "root group", modify: func(d *Descriptor) { d.Identity.Group = "root" }, target: ErrPrivilegedIdentity},
		{name: "bad user name", modify: func(d *Descriptor) { d.Identity.User = "App_User" }, target: ErrInvalidDescriptor},
		{name: "port mismatch", modify: func(d *Descriptor) { d.Port = 9000 }, target: ErrInvalidDescriptor},
		{name: "bad version", modify: func(d *Descriptor) { d.Metadata.Version = "v1" }, target: ErrInvalidDescriptor},
		{name: "timeout over interval", modify: func(d *Descriptor) { d.Probe.Timeout = time.Minute }, target: ErrInvalidDescriptor},
		{name: "no retries", modify: func(d *Descriptor) { d.Probe.Retries = 0 }, target: ErrInvalidDescriptor},
		{name: "escaping source", modify: func(d *Descriptor) { d.SourcePath = "../app" }, target: ErrInvalidDescriptor},
		{name: "relative workdir", modify: func(d *Descriptor) { d.WorkDir = "app" }, target: ErrInvalidDescriptor},
		{name: "shell in launch", modify: func(d *Descriptor) { d.Launch.App = "app.main:app; rm -rf /" }, target: ErrInvalidDescriptor},
		{name: "app version drift", modify: func(d *Descriptor) {
			d.Runtime = d.Runtime.WithOverrides(map[string]string{EnvAppVersion: "2.0.0"})
		}, target: ErrInvalidDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DefaultDescriptor()
			tt.modify(&d)
			assert.ErrorIs(t, d.Validate(), tt.target)
		})
	}
}

func TestDescriptor_DigestStable(t *testing.T) {
	a := DefaultDescriptor()
	b := DefaultDescriptor()
	assert.Equal(t, a.Digest(), b.Digest())
	c := b.WithRuntime(b.Runtime.WithOverrides(map[string]string{EnvDebug: "true"}))
	assert.NotEqual(t, a.Digest(), c.Digest())
	// WithRuntime leaves the receiver alone
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestDescriptor_WatchURL(t *testing.T) {
	d := DefaultDescriptor()
	d.ReadinessPath = "/status/ready"
	tests := []struct {
		target    string
		readiness bool
		want      string
		wantErr   bool
	}{
		{target: "http://crypto-tracker:8000", want: "http://crypto-tracker:8000/health"},
		{target: "http://crypto-tracker:8000/", want: "http://crypto-tracker:8000/health"},
		{target: "http://crypto-tracker:8000/custom", want: "http://crypto-tracker:8000/custom"},
		{target: "http://crypto-tracker:8000/health", readiness: true, want: "http://crypto-tracker:8000/status/ready"},
		{target: "http://crypto-tracker:8000", readiness: true, want: "http://crypto-tracker:8000/status/ready"},
		{target: "crypto-tracker:8000", wantErr: true},
		{target: "://", wantErr: true},
	}
	for _, tt := range tests {
		got, err := d.WatchURL(tt.target, tt.readiness)
		if tt.wantErr {
			assert.Error(t, err, tt.target)
			continue
		}
		require.NoError(t, err, tt.target)
		assert.Equal(t, tt.want, got, tt.target)
	}
}

func TestIsRootUser(t *testing.T) {
	for _, u := range []string{"", "root", "0", "0:0", "1000:0", "appuser:root", "root:1000"} {
		assert.True(t, IsRootUser(u), u)
	}
	for _, u := range []string{"1000", "1000:1000", "appuser", "appuser:appgroup"} {
		assert.False(t, IsRootUser(u), u)
	}
}

func TestLaunchCommand(t *testing.T) {
	l := DefaultLaunchCommand()
	assert.Equal(t, []string{"sh", "-c", `exec uvicorn app.main:app --host "$APP_HOST" --port "$APP_PORT"`}, l.Argv())
}

func TestPythonProbeCommand(t *testing.T) {
	cmd := PythonProbeCommand("/health", 10*time.Second)
	require.Len(t, cmd, 3)
	assert.Equal(t, []string{"python", "-c"}, cmd[:2])
	assert.Contains(t, cmd[2], "import os, sys, httpx; ")
	assert.Contains(t, cmd[2], "httpx.get('http://localhost:' + ")
	assert.Contains(t, cmd[2], "sys.exit(0 if r.is_success else 1)")
	assert.Contains(t, cmd[2], "os.environ.get('APP_PORT', '8000')")
	assert.Contains(t, cmd[2], "'/health', timeout=10)")
}
