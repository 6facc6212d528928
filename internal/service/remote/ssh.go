package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	"github.com/councillor-bot/councillor-deploy/internal/logger"
)

const (
	// defaultKeyFile is used when a target does not name a private key.
	defaultKeyFile = "~/.ssh/id_ed25519"

	// defaultKnownHostsFile is used when a target does not name a known_hosts file.
	defaultKnownHostsFile = "~/.ssh/known_hosts"

	// uploadMode is the permission set on uploaded binaries.
	uploadMode = 0o755
)

// sftpClient is the slice of the SFTP API the deployer uses for transfers.
type sftpClient interface {
	MkdirAll(path string) error
	Create(path string) (io.WriteCloser, error)
	Chmod(path string, mode os.FileMode) error
	PosixRename(oldname, newname string) error
	Rename(oldname, newname string) error
	Remove(path string) error
	Close() error
}

// Connection constructors, swappable in tests.
//
//nolint:gochecknoglobals // Test seams.
var (
	sshDial = ssh.Dial

	newSFTPClient = func(client *ssh.Client) (sftpClient, error) {
		transfer, err := sftp.NewClient(client)
		if err != nil {
			return nil, err
		}

		return &liveSFTPClient{transfer}, nil
	}
)

// liveSFTPClient narrows *sftp.Client's Create return type to io.WriteCloser.
type liveSFTPClient struct {
	*sftp.Client
}

func (c *liveSFTPClient) Create(path string) (io.WriteCloser, error) {
	return c.Client.Create(path)
}

// Deployer handles the connection and file transfer to a remote host.
type Deployer struct {
	client *ssh.Client
	sftp   sftpClient
}

// Dial opens an SSH connection to the target using its private key and
// verifies the host against the known_hosts file.
func Dial(target *config.Target) (*Deployer, error) {
	keyFile, err := expandHome(valueOrDefault(target.KeyFile, defaultKeyFile))
	if err != nil {
		return nil, err
	}

	keyData, err := os.ReadFile(filepath.Clean(keyFile))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	knownHostsFile, err := expandHome(valueOrDefault(target.KnownHostsFile, defaultKnownHostsFile))
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         time.Duration(target.Timeout),
	}

	client, err := sshDial("tcp", hostAddr(target), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", target.Host, err)
	}

	transfer, err := newSFTPClient(client)
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("create sftp client: %w", err)
	}

	return &Deployer{
		client: client,
		sftp:   transfer,
	}, nil
}

// Upload copies a local file to the remote path, replacing the previous
// file atomically via a temporary name next to the destination.
func (d *Deployer) Upload(ctx context.Context, localPath, remotePath string) error {
	local, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}

	defer func() {
		_ = local.Close()
	}()

	if err = d.sftp.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("create remote directory: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.deploy.%d", remotePath, time.Now().UnixNano())

	remote, err := d.sftp.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create remote temporary file: %w", err)
	}

	written, err := io.Copy(remote, local)
	if err != nil {
		_ = remote.Close()
		_ = d.sftp.Remove(tmpPath)

		return fmt.Errorf("write remote temporary file: %w", err)
	}

	if err = remote.Close(); err != nil {
		_ = d.sftp.Remove(tmpPath)

		return fmt.Errorf("close remote temporary file: %w", err)
	}

	if err = d.sftp.Chmod(tmpPath, uploadMode); err != nil {
		_ = d.sftp.Remove(tmpPath)

		return fmt.Errorf("chmod remote temporary file: %w", err)
	}

	if err = d.rename(tmpPath, remotePath); err != nil {
		_ = d.sftp.Remove(tmpPath)

		return err
	}

	logger.InfoKV(ctx, "Uploaded file",
		"local", localPath, "remote", remotePath, "bytes", written)

	return nil
}

// rename moves the temporary upload into place, preferring the POSIX rename
// extension which overwrites atomically.
func (d *Deployer) rename(tmpPath, remotePath string) error {
	if err := d.sftp.PosixRename(tmpPath, remotePath); err == nil {
		return nil
	}

	// Server without the extension: drop the old file first.
	_ = d.sftp.Remove(remotePath)

	if err := d.sftp.Rename(tmpPath, remotePath); err != nil {
		return fmt.Errorf("rename remote file into place: %w", err)
	}

	return nil
}

// RunCommand executes a shell command on the remote host and returns its
// combined output.
func (d *Deployer) RunCommand(ctx context.Context, command string) (string, error) {
	logger.DebugKV(ctx, "Running remote command", "command", command)

	session, err := d.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session: %w", err)
	}

	defer func() {
		_ = session.Close()
	}()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("remote command %q: %s: %w",
			command, strings.TrimSpace(string(output)), err)
	}

	return string(output), nil
}

// Checksum returns the SHA-512 digest of a remote file.
func (d *Deployer) Checksum(ctx context.Context, remotePath string) ([]byte, error) {
	output, err := d.RunCommand(ctx, "sha512sum "+shellQuote(remotePath))
	if err != nil {
		return nil, err
	}

	return parseChecksumOutput(output)
}

// RestartService restarts the systemd unit on the remote host.
func (d *Deployer) RestartService(ctx context.Context, unit string) error {
	logger.InfoKV(ctx, "Restarting remote service", "unit", unit)

	if _, err := d.RunCommand(ctx, "sudo systemctl restart "+shellQuote(unit)); err != nil {
		return err
	}

	return nil
}

// CheckService verifies the systemd unit reports itself active.
func (d *Deployer) CheckService(ctx context.Context, unit string) error {
	output, err := d.RunCommand(ctx, "systemctl is-active "+shellQuote(unit))
	if err != nil {
		return err
	}

	state := strings.TrimSpace(output)
	if state != "active" {
		return fmt.Errorf("service %s is %s", unit, state)
	}

	return nil
}

// Close closes the underlying SSH and SFTP clients.
func (d *Deployer) Close() {
	if d.sftp != nil {
		_ = d.sftp.Close()
	}

	if d.client != nil {
		_ = d.client.Close()
	}
}
