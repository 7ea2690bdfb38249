package storage

import "os"

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
	DynamoModeNone  DynamoMode = "none"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode     DynamoMode
	Endpoint string // for local mode
	Region   string

	// PartitionPrefix is the common name prefix of sale partitions. The
	// primary shared partition is the bare prefix; per-agent partitions
	// append "_<suffix>".
	PartitionPrefix string

	// OwnersTable holds the explicit partition-ownership mapping.
	OwnersTable string
}

// PrimaryPartition is the shared partition holding sales for many agents.
func (c DynamoConfig) PrimaryPartition() string {
	return c.PartitionPrefix
}

// LoadDynamoConfig loads DynamoDB config from environment
func LoadDynamoConfig() DynamoConfig {
	mode := DynamoMode(getEnv("DYNAMO_MODE", "none"))
	if mode != DynamoModeLocal && mode != DynamoModeAWS {
		mode = DynamoModeNone
	}

	return DynamoConfig{
		Mode:            mode,
		Endpoint:        getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:          getEnv("DYNAMO_REGION", "us-east-1"),
		PartitionPrefix: getEnv("DYNAMO_PARTITION_PREFIX", "crm-sales"),
		OwnersTable:     getEnv("DYNAMO_OWNERS_TABLE", "crm-sales-owners"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
