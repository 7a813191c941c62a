//go:build integration
// +build integration

package integration

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/SystemsPurge/FiLiP/pkg/cbclient"
	"github.com/SystemsPurge/FiLiP/pkg/iota"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
	"github.com/SystemsPurge/FiLiP/pkg/quantumleap"
)

// TestConfig holds the endpoints of a live FIWARE stack under test
type TestConfig struct {
	BrokerURL      string
	IoTAgentURL    string
	QuantumLeapURL string
	Service        string
	ServicePath    string
	AccessToken    string
	Verbose        bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	service := os.Getenv("FILIP_TEST_SERVICE")
	if service == "" {
		service = "filiptest"
	}

	return &TestConfig{
		BrokerURL:      os.Getenv("FILIP_TEST_BROKER_URL"),
		IoTAgentURL:    os.Getenv("FILIP_TEST_IOTA_URL"),
		QuantumLeapURL: os.Getenv("FILIP_TEST_QL_URL"),
		Service:        service,
		ServicePath:    os.Getenv("FILIP_TEST_SERVICE_PATH"),
		AccessToken:    os.Getenv("FILIP_TEST_ACCESS_TOKEN"),
		Verbose:        os.Getenv("FILIP_TEST_VERBOSE") == "true",
	}
}

// SkipIfNoBroker skips the test when no context broker is configured
func (c *TestConfig) SkipIfNoBroker(t *testing.T) {
	t.Helper()

	if c.BrokerURL == "" {
		t.Skip("Skipping integration test: FILIP_TEST_BROKER_URL not set")
	}
}

// SkipIfNoAgent skips the test when no IoT Agent is configured
func (c *TestConfig) SkipIfNoAgent(t *testing.T) {
	t.Helper()

	if c.IoTAgentURL == "" {
		t.Skip("Skipping integration test: FILIP_TEST_IOTA_URL not set")
	}
}

// SkipIfNoQuantumLeap skips the test when no QuantumLeap is configured
func (c *TestConfig) SkipIfNoQuantumLeap(t *testing.T) {
	t.Helper()

	if c.QuantumLeapURL == "" {
		t.Skip("Skipping integration test: FILIP_TEST_QL_URL not set")
	}
}

func (c *TestConfig) clientConfig(baseURL string) *ngsi.Config {
	return &ngsi.Config{
		BrokerURL:   baseURL,
		Service:     c.Service,
		ServicePath: c.ServicePath,
		AccessToken: c.AccessToken,
	}
}

// NewBrokerClient creates a context broker client for the stack under
// test
func (c *TestConfig) NewBrokerClient(t *testing.T) ngsi.Client {
	t.Helper()

	client, err := cbclient.New(c.clientConfig(c.BrokerURL))
	if err != nil {
		t.Fatalf("Failed to create broker client: %v", err)
	}

	return client
}

// NewAgentClient creates an IoT Agent client for the stack under test
func (c *TestConfig) NewAgentClient(t *testing.T) *iota.Client {
	t.Helper()

	client, err := iota.New(c.clientConfig(c.IoTAgentURL))
	if err != nil {
		t.Fatalf("Failed to create agent client: %v", err)
	}

	return client
}

// NewQuantumLeapClient creates a QuantumLeap client for the stack
// under test
func (c *TestConfig) NewQuantumLeapClient(t *testing.T) *quantumleap.Client {
	t.Helper()

	client, err := quantumleap.New(c.clientConfig(c.QuantumLeapURL))
	if err != nil {
		t.Fatalf("Failed to create QuantumLeap client: %v", err)
	}

	return client
}

// GenerateTestName creates a unique name to keep parallel test runs
// from colliding
func GenerateTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// GenerateEntityID creates a unique urn-style entity id
func GenerateEntityID(entityType string) string {
	return fmt.Sprintf("urn:ngsi-ld:%s:%d", entityType, time.Now().UnixNano())
}
