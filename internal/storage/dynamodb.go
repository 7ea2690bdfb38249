package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB. Each sale partition
// is a table sharing a common name prefix; the legacy importer created one
// table per agent next to the shared primary table, and new agent tables
// appear without notice, so partitions are always discovered, never
// configured.
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	// Create the primary partition and the owners table in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Str("partition_prefix", cfg.PartitionPrefix).
		Msg("DynamoDB store initialized")

	return store, nil
}

// ListPartitions enumerates all tables whose name starts with prefix,
// excluding the owners table. ListTables pages at 100 names.
func (s *DynamoDBStore) ListPartitions(ctx context.Context, prefix string) ([]string, error) {
	var partitions []string
	var startName *string

	for {
		out, err := s.client.ListTables(ctx, &dynamodb.ListTablesInput{
			ExclusiveStartTableName: startName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}

		for _, name := range out.TableNames {
			if strings.HasPrefix(name, prefix) && name != s.config.OwnersTable {
				partitions = append(partitions, name)
			}
		}

		startName = out.LastEvaluatedTableName
		if startName == nil {
			break
		}
	}

	return partitions, nil
}

// saleProjection limits partition scans to the attributes the aggregation
// pipeline reads. The legacy records carry form blobs and comment fields
// that would multiply the scan payload for nothing.
var saleProjection = expression.NamesList(
	expression.Name("agenteNombre"),
	expression.Name("agente"),
	expression.Name("nombreAgente"),
	expression.Name("creadoPor"),
	expression.Name("registeredBy"),
	expression.Name("vendedor"),
	expression.Name("agenteId"),
	expression.Name("ownerId"),
	expression.Name("supervisor"),
	expression.Name("team"),
	expression.Name("equipo"),
	expression.Name("telefono"),
	expression.Name("telefono_principal"),
	expression.Name("numero_cuenta"),
	expression.Name("servicios"),
	expression.Name("tipo_servicio"),
	expression.Name("producto_contratado"),
	expression.Name("riesgo"),
	expression.Name("puntaje"),
	expression.Name("dia_venta"),
	expression.Name("fecha_contratacion"),
	expression.Name("creadoEn"),
	expression.Name("createdAt"),
	expression.Name("status"),
	expression.Name("excluirDeReporte"),
)

// ScanSales streams every record of one partition through fn, paginating
// with ExclusiveStartKey.
func (s *DynamoDBStore) ScanSales(ctx context.Context, partition string, fn func(types.RawSaleRecord) error) error {
	expr, err := expression.NewBuilder().WithProjection(saleProjection).Build()
	if err != nil {
		return fmt.Errorf("failed to build projection: %w", err)
	}

	var lastKey map[string]dbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:                aws.String(partition),
			ProjectionExpression:     expr.Projection(),
			ExpressionAttributeNames: expr.Names(),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan partition %s: %w", partition, err)
		}

		for _, item := range result.Items {
			var record types.RawSaleRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				// One mangled item must not abort the whole partition.
				s.logger.Warn().Err(err).Str("partition", partition).Msg("skipping unmarshalable record")
				continue
			}
			if err := fn(record); err != nil {
				if err == ErrStopScan {
					return nil
				}
				return err
			}
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			return nil
		}
	}
}

// OwnershipMappings scans the owners table.
func (s *DynamoDBStore) OwnershipMappings(ctx context.Context) ([]types.PartitionOwner, error) {
	var owners []types.PartitionOwner
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(s.config.OwnersTable),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan owners table: %w", err)
		}

		var page []types.PartitionOwner
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ownership mappings: %w", err)
		}
		owners = append(owners, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			return owners, nil
		}
	}
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, DynamoConfig, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		store, err := NewDynamoDBStore(ctx, cfg, logger)
		return store, cfg, err
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemStore(), cfg, nil
	}
}
