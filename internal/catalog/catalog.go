// Package catalog defines the service descriptors the provisioner registers
// with the policy admin server and the built-in development catalog.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Service describes one service definition to register. Configs keeps its
// declared key order so request bodies serialise deterministically.
type Service struct {
	Name    string                                 `json:"name" yaml:"name"`
	Type    string                                 `json:"type" yaml:"type"`
	Configs *orderedmap.OrderedMap[string, string] `json:"configs" yaml:"configs"`
}

// Pairs builds an ordered config map from alternating key/value strings.
func Pairs(kv ...string) *orderedmap.OrderedMap[string, string] {
	if len(kv)%2 != 0 {
		panic("catalog: Pairs requires an even number of arguments")
	}
	m := orderedmap.New[string, string](len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// Builtin returns the development catalog: the eight service definitions the
// local ranger-docker cluster expects, in registration order.
func Builtin() []Service {
	return []Service{
		{
			Name: "dev_hdfs",
			Type: "hdfs",
			Configs: Pairs(
				"username", "hdfs",
				"password", "hdfs",
				"fs.default.name", "hdfs://ranger-hadoop:9000",
				"hadoop.security.authentication", "simple",
				"hadoop.security.authorization", "true",
			),
		},
		{
			Name: "dev_hive",
			Type: "hive",
			Configs: Pairs(
				"username", "hive",
				"password", "hive",
				"jdbc.driverClassName", "org.apache.hive.jdbc.HiveDriver",
				"jdbc.url", "jdbc:hive2://ranger-hive:10000",
				"hadoop.security.authorization", "true",
			),
		},
		{
			Name: "dev_kafka",
			Type: "kafka",
			Configs: Pairs(
				"username", "kafka",
				"password", "kafka",
				"zookeeper.connect", "ranger-zk.example.com:2181",
			),
		},
		{
			Name: "dev_knox",
			Type: "knox",
			Configs: Pairs(
				"username", "knox",
				"password", "knox",
				"knox.url", "https://ranger-knox:8443",
			),
		},
		{
			Name: "dev_yarn",
			Type: "yarn",
			Configs: Pairs(
				"username", "yarn",
				"password", "yarn",
				"yarn.url", "http://ranger-hadoop:8088",
			),
		},
		{
			Name: "dev_hbase",
			Type: "hbase",
			Configs: Pairs(
				"username", "hbase",
				"password", "hbase",
				"hadoop.security.authentication", "simple",
				"hbase.security.authentication", "simple",
				"hadoop.security.authorization", "true",
				"hbase.zookeeper.property.clientPort", "2181",
				"hbase.zookeeper.quorum", "ranger-zk",
				"zookeeper.znode.parent", "/hbase",
			),
		},
		{
			Name: "dev_kms",
			Type: "kms",
			Configs: Pairs(
				"username", "keyadmin",
				"password", "rangerR0cks!",
				"provider", "http://ranger-kms:9292",
			),
		},
		{
			Name: "dev_trino",
			Type: "trino",
			Configs: Pairs(
				"username", "trino",
				"password", "trino",
				"jdbc.driverClassName", "io.trino.jdbc.TrinoDriver",
				"jdbc.url", "jdbc:trino://ranger-trino:8080",
			),
		},
	}
}

// Names returns the service names in catalog order.
func Names(services []Service) []string {
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	return names
}

// Validate performs structural validation on a catalog.
func Validate(services []Service) error {
	var errs []error

	if len(services) == 0 {
		errs = append(errs, errors.New("catalog must not be empty"))
	}

	seen := mapset.NewSet[string]()
	for _, svc := range services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			errs = append(errs, errors.New("service name must not be empty"))
			continue
		}
		if !seen.Add(name) {
			errs = append(errs, fmt.Errorf("duplicate service name: %s", name))
		}
		if strings.TrimSpace(svc.Type) == "" {
			errs = append(errs, fmt.Errorf("service %s requires a type", name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
