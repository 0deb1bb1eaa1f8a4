package config

import (
	"errors"
	"fmt"
	"io/ioutil"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v2"

	"mongo-change-feed/driver"
	"mongo-change-feed/feed"
	"mongo-change-feed/pool"
)

// Config describes a deployment to connect to and the change feed to open
// against it.
type Config struct {
	Hosts    []string   `yaml:"hosts"`
	PoolSize int        `yaml:"poolSize"`
	SSL      *SSLConfig `yaml:"ssl"`
	Watch    Watch      `yaml:"watch"`
}

// SSLConfig points at the certificate files used for TLS connections.
type SSLConfig struct {
	CAFile          string `yaml:"caFile"`
	CertificateFile string `yaml:"certificateFile"`
	KeyFile         string `yaml:"keyFile"`
}

// Watch selects a feed target and its options. Exactly one of Cluster,
// Database, or Database+Collection chooses the target.
type Watch struct {
	Database             string  `yaml:"database"`
	Collection           string  `yaml:"collection"`
	Cluster              bool    `yaml:"cluster"`
	FullDocument         string  `yaml:"fullDocument"`
	BatchSize            *int32  `yaml:"batchSize"`
	MaxAwaitMS           *int64  `yaml:"maxAwaitMS"`
	StartAtOperationTime *uint32 `yaml:"startAtOperationTime"`
	ReadPreference       string  `yaml:"readPreference"`
}

// FromYamlFile decodes the yaml content at the given file path into config.
func FromYamlFile(filePath string, config *Config) error {
	b, err := ioutil.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, config)
}

// Validate reports configurations that cannot describe a feed.
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return errors.New("config: at least one host is required")
	}
	if c.PoolSize < 0 {
		return errors.New("config: poolSize must not be negative")
	}
	w := c.Watch
	if w.Cluster && (w.Database != "" || w.Collection != "") {
		return errors.New("config: a cluster watch must not name a database or collection")
	}
	if !w.Cluster && w.Database == "" {
		return errors.New("config: a watch needs a database unless cluster is set")
	}
	if _, err := w.ReadPref(); err != nil {
		return err
	}
	return nil
}

// FeedOptions maps the watch section onto change feed options.
func (w Watch) FeedOptions() *feed.Options {
	opts := feed.NewOptions()
	if w.FullDocument != "" {
		opts.FullDocument = feed.FullDocumentMode(w.FullDocument)
	}
	opts.BatchSize = w.BatchSize
	opts.MaxAwait = w.MaxAwaitMS
	if w.StartAtOperationTime != nil {
		opts.StartAtOperationTime = &primitive.Timestamp{T: *w.StartAtOperationTime}
	}
	return opts
}

// ReadPref parses the configured read preference, defaulting to primary.
func (w Watch) ReadPref() (driver.ReadPreference, error) {
	switch driver.ReadMode(w.ReadPreference) {
	case "":
		return driver.ReadPreference{Mode: driver.Primary}, nil
	case driver.Primary, driver.PrimaryPreferred, driver.Secondary, driver.SecondaryPreferred, driver.Nearest:
		return driver.ReadPreference{Mode: driver.ReadMode(w.ReadPreference)}, nil
	}
	return driver.ReadPreference{}, fmt.Errorf("config: unknown read preference %q", w.ReadPreference)
}

// Pool builds the connection pool for the first configured host.
func (c *Config) Pool() (*pool.Pool, error) {
	if len(c.Hosts) == 0 {
		return nil, errors.New("config: at least one host is required")
	}
	size := c.PoolSize
	if size == 0 {
		size = pool.DefaultSize
	}

	if c.SSL != nil {
		tlsConfig, err := pool.TLSConfig(c.SSL.CAFile, c.SSL.CertificateFile, c.SSL.KeyFile)
		if err != nil {
			return nil, err
		}
		return pool.WithTLS(c.Hosts[0], size, tlsConfig), nil
	}
	return pool.WithSize(c.Hosts[0], size), nil
}
