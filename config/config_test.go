package config_test

import (
	"io/ioutil"
	"os"
	"testing"

	"mongo-change-feed/config"
	"mongo-change-feed/driver"
	"mongo-change-feed/feed"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "feed-config-*.yml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing config: %v", err)
	}
	return f.Name()
}

func TestFromYamlFile(t *testing.T) {
	path := writeConfig(t, `
hosts:
  - mongo-1:27017
  - mongo-2:27017
poolSize: 8
watch:
  database: shop
  collection: orders
  fullDocument: updateLookup
  batchSize: 100
  maxAwaitMS: 2000
  startAtOperationTime: 1588888888
  readPreference: secondaryPreferred
`)
	defer os.Remove(path)

	conf := config.Config{}
	if err := config.FromYamlFile(path, &conf); err != nil {
		t.Fatalf("FromYamlFile: %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(conf.Hosts) != 2 || conf.Hosts[0] != "mongo-1:27017" {
		t.Errorf("Hosts = %v", conf.Hosts)
	}
	if conf.PoolSize != 8 {
		t.Errorf("PoolSize = %d, want 8", conf.PoolSize)
	}

	opts := conf.Watch.FeedOptions()
	if opts.FullDocument != feed.FullDocumentUpdateLookup {
		t.Errorf("FullDocument = %q, want updateLookup", opts.FullDocument)
	}
	if opts.BatchSize == nil || *opts.BatchSize != 100 {
		t.Errorf("BatchSize = %v, want 100", opts.BatchSize)
	}
	if opts.MaxAwait == nil || *opts.MaxAwait != 2000 {
		t.Errorf("MaxAwait = %v, want 2000", opts.MaxAwait)
	}
	if opts.StartAtOperationTime == nil || opts.StartAtOperationTime.T != 1588888888 {
		t.Errorf("StartAtOperationTime = %v, want T=1588888888", opts.StartAtOperationTime)
	}

	pref, err := conf.Watch.ReadPref()
	if err != nil {
		t.Fatalf("ReadPref: %v", err)
	}
	if pref.Mode != driver.SecondaryPreferred {
		t.Errorf("read preference = %q, want secondaryPreferred", pref.Mode)
	}
}

func TestFeedOptionsDefaults(t *testing.T) {
	opts := config.Watch{Database: "shop"}.FeedOptions()
	if opts.FullDocument != feed.FullDocumentDefault {
		t.Errorf("FullDocument = %q, want default", opts.FullDocument)
	}
	if opts.BatchSize != nil || opts.MaxAwait != nil || opts.StartAtOperationTime != nil {
		t.Errorf("unset options leaked into %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		conf    config.Config
		wantErr bool
	}{
		{
			name: "collection watch",
			conf: config.Config{Hosts: []string{"h:1"}, Watch: config.Watch{Database: "d", Collection: "c"}},
		},
		{
			name: "cluster watch",
			conf: config.Config{Hosts: []string{"h:1"}, Watch: config.Watch{Cluster: true}},
		},
		{
			name:    "no hosts",
			conf:    config.Config{Watch: config.Watch{Database: "d"}},
			wantErr: true,
		},
		{
			name:    "cluster watch naming a database",
			conf:    config.Config{Hosts: []string{"h:1"}, Watch: config.Watch{Cluster: true, Database: "d"}},
			wantErr: true,
		},
		{
			name:    "no target",
			conf:    config.Config{Hosts: []string{"h:1"}},
			wantErr: true,
		},
		{
			name:    "bad read preference",
			conf:    config.Config{Hosts: []string{"h:1"}, Watch: config.Watch{Database: "d", ReadPreference: "fastest"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.conf.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPoolFromConfig(t *testing.T) {
	conf := config.Config{Hosts: []string{"localhost:27017"}}
	p, err := conf.Pool()
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if p == nil {
		t.Fatal("Pool() returned nil")
	}
}
