package server

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kestrel/internal/conf"
	"kestrel/internal/db"
	"kestrel/internal/mailstore"
	"kestrel/internal/models"
)

// MockConn implements net.Conn for testing
type MockConn struct {
	mu          sync.Mutex
	readBuffer  []byte
	writeBuffer []byte
	readPos     int
	closed      bool
}

func NewMockConn() *MockConn {
	return &MockConn{
		readBuffer:  make([]byte, 0),
		writeBuffer: make([]byte, 0),
	}
}

func (m *MockConn) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.readPos >= len(m.readBuffer) {
		return 0, net.ErrClosed
	}
	n := copy(b, m.readBuffer[m.readPos:])
	m.readPos += n
	return n, nil
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	m.writeBuffer = append(m.writeBuffer, b...)
	return len(b), nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConn) LocalAddr() net.Addr                { return nil }
func (m *MockConn) RemoteAddr() net.Addr               { return nil }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *MockConn) GetWrittenData() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.writeBuffer)
}

// GetWrittenLines splits the written data into CRLF terminated lines
func (m *MockConn) GetWrittenLines() []string {
	data := strings.TrimSuffix(m.GetWrittenData(), "\r\n")
	if data == "" {
		return nil
	}
	return strings.Split(data, "\r\n")
}

func (m *MockConn) ClearWriteBuffer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBuffer = m.writeBuffer[:0]
}

func (m *MockConn) AddReadData(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuffer = append(m.readBuffer, []byte(data)...)
}

// IsClosed reports whether Close was called
func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockTLSConn wraps MockConn to simulate TLS connection
type MockTLSConn struct {
	*MockConn
}

func NewMockTLSConn() *MockTLSConn {
	return &MockTLSConn{
		MockConn: NewMockConn(),
	}
}

// Indicate to server code that this mock represents a TLS connection
func (m *MockTLSConn) IsTLS() bool { return true }

// Interface for mock connections to allow polymorphism
type MockConnInterface interface {
	net.Conn
	GetWrittenData() string
	ClearWriteBuffer()
	AddReadData(string)
}

// Ensure MockConn implements MockConnInterface
var _ MockConnInterface = (*MockConn)(nil)
var _ MockConnInterface = (*MockTLSConn)(nil)

// SetupTestServer creates a test IMAP server over a temporary mail root with
// an in-memory subscription database and STARTTLS enabled.
func SetupTestServer(t *testing.T) *TestInterface {
	t.Helper()

	root := t.TempDir()

	cfg := conf.DefaultConfig()
	cfg.MailRoot = root
	cfg.Timeouts.Read = 5
	cfg.Timeouts.Write = 5

	database, err := db.InitDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	imapServer := NewIMAPServer(cfg, mailstore.NewFSStore(root, nil), db.NewSubscriptions(database), nil)
	imapServer.SetTLSConfig(CreateTLSConfig(t))

	return NewTestInterface(imapServer)
}

// WriteTestMessage stores a message file under <root>/<user>/<folder>/<name>
func WriteTestMessage(t *testing.T, srv *TestInterface, user, folder, name, body string) {
	t.Helper()
	dir := filepath.Join(srv.MailRoot(), user, folder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
}

// CreateTestFolder creates an empty folder for user
func CreateTestFolder(t *testing.T, srv *TestInterface, user, folder string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(srv.MailRoot(), user, folder), 0o750); err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
}

// SetupAuthenticatedState returns a session state logged in as username
func SetupAuthenticatedState(t *testing.T, srv *TestInterface, username string) *models.ClientState {
	t.Helper()
	state := &models.ClientState{}
	state.Login(username, username, 0)
	return state
}

// SetupSelectedState returns a logged in state with the inbox selected
func SetupSelectedState(t *testing.T, srv *TestInterface, username string) *models.ClientState {
	t.Helper()
	state := SetupAuthenticatedState(t, srv, username)
	conn := NewMockConn()
	srv.HandleSelect(conn, "S000", "INBOX", state)
	if !state.HasSelection() {
		t.Fatalf("Failed to select inbox: %s", conn.GetWrittenData())
	}
	return state
}

// ReadResponse reads lines from r until the tagged completion for tag
func ReadResponse(t *testing.T, r *bufio.Reader, tag string) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read response for %s: %v (got %v)", tag, err, lines)
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)
		if strings.HasPrefix(line, tag+" ") {
			return lines
		}
	}
}

// GenerateTestCertificates generates self-signed certificates for testing STARTTLS
// Returns the paths to the cert and key files
func GenerateTestCertificates(t *testing.T) (certPath, keyPath string) {
	t.Helper()

	tmpDir := t.TempDir()
	certPath = filepath.Join(tmpDir, "fullchain.pem")
	keyPath = filepath.Join(tmpDir, "privkey.pem")

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate private key: %v", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(24 * time.Hour)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to generate serial number: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Test IMAP Server"},
			CommonName:   "localhost",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("Failed to write cert file: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	return certPath, keyPath
}

// CreateTLSConfig returns a server TLS configuration with a fresh self-signed certificate
func CreateTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	certPath, keyPath := GenerateTestCertificates(t)

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("Failed to load test certificates: %v", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}
