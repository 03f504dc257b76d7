package main

import (
	"os/user"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: The expected command should be built from the given arguments.
func Test_MountHelper_BuildCommand_Success(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "basic mount no options",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com"},
		},
		{
			name: "bare flag option",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "allow-other"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other"},
		},
		{
			name: "key=value option",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "webaddr=:8000"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--webaddr", ":8000"},
		},
		{
			name: "mixed bare flag and key=value",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "allow-other,tar-threshold=2MiB"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other", "--tar-threshold", "2MiB"},
		},
		{
			name: "options alphabetically sorted",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "webaddr=:8080,allow-other,cache-ttl=30s"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other", "--cache-ttl", "30s", "--webaddr", ":8080"},
		},
		{
			name: "options passed with -o",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "-o", "allow-other,webaddr=:8080"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other", "--webaddr", ":8080"},
		},
		{
			name: "multiple -o flags merged",
			args: []string{
				"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs",
				"-o", "allow-other", "-o", "webaddr=:7000",
			},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other", "--webaddr", ":7000"},
		},
		{
			name: "ignore -v flag",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "-v", "allow-other"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other"},
		},
		{
			name: "underscore converted to dash in bare option",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "allow_other"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other"},
		},
		{
			name: "underscore converted to dash in key=value",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "tar_threshold=256"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--tar-threshold", "256"},
		},
		{
			name: "ring_buffer_size option",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "ring_buffer_size=8192"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--ring-buffer-size", "8192"},
		},
		{
			name: "registry option",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "registry=https://registry.npmjs.org"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--registry", "https://registry.npmjs.org"},
		},
		{
			name: "option value with space",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "tar-threshold=128 MiB"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--tar-threshold", "128 MiB"},
		},
		{
			name: "mountpoint with space",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/with space"},
			want: []string{"pkgfuse", "/mnt/with space", "--cdn", "https://unpkg.com"},
		},
		{
			name: "options with prefix and dashes",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "--allow-other,--cache-size=512"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other", "--cache-size", "512"},
		},
		{
			name: "empty option string ignored",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "allow-other,,webaddr=:8000"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other", "--webaddr", ":8000"},
		},
		{
			name: "unknown option ignored",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "unknown-option,allow-other"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com", "--allow-other"},
		},
		{
			name: "empty -o argument ignored",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "-o"},
			want: []string{"pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com"},
		},
		{
			name: "explicit binary path",
			args: []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "-o", "xbin=/usr/local/bin/pkgfuse"},
			want: []string{"/usr/local/bin/pkgfuse", "/mnt/pkgs", "--cdn", "https://unpkg.com"},
		},
		{
			name:    "empty source argument",
			args:    []string{"mount.pkgfuse", "", "/mnt/pkgs"},
			wantErr: true,
		},
		{
			name:    "empty mountpoint argument",
			args:    []string{"mount.pkgfuse", "https://unpkg.com", ""},
			wantErr: true,
		},
		{
			name:    "missing mountpoint argument",
			args:    []string{"mount.pkgfuse", "https://unpkg.com"},
			wantErr: true,
		},
		{
			name:    "invalid xtim value",
			args:    []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "-o", "xtim=0"},
			wantErr: true,
		},
		{
			name:    "empty xbin value",
			args:    []string{"mount.pkgfuse", "https://unpkg.com", "/mnt/pkgs", "-o", "xbin="},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mh, err := newMountHelper(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newMountHelper() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			got := mh.BuildCommand()
			if !slices.Equal(got, tt.want) {
				t.Errorf("BuildCommand() = %v\nwant %v", got, tt.want)
			}
		})
	}
}

// Expectation: Name and numeric specs of a known account should resolve
// to its uid/gid pair; bare numeric IDs without a passwd entry fall back
// to uid = gid; garbage names fail.
func Test_ResolveUser_Success(t *testing.T) {
	t.Parallel()

	cur, err := user.Current()
	if err == nil {
		wantUID, err := strconv.ParseUint(cur.Uid, 10, 32)
		require.NoError(t, err)
		wantGID, err := strconv.ParseUint(cur.Gid, 10, 32)
		require.NoError(t, err)

		uid, gid, err := resolveUser(cur.Username)
		require.NoError(t, err)
		require.Equal(t, uint32(wantUID), uid)
		require.Equal(t, uint32(wantGID), gid)

		uid, gid, err = resolveUser(cur.Uid)
		require.NoError(t, err)
		require.Equal(t, uint32(wantUID), uid)
		require.Equal(t, uint32(wantGID), gid)
	}

	uid, gid, err := resolveUser("4242424")
	require.NoError(t, err)
	require.Equal(t, uint32(4242424), uid)
	require.Equal(t, uint32(4242424), gid)

	_, _, err = resolveUser("definitely-no-such-user")
	require.Error(t, err)
}
