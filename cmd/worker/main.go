// Command worker runs the CDC pipeline end to end: it replicates a
// Postgres table over logical replication, decodes each change into the
// Debezium JSON envelope, runs it through the codec parser/formatter
// pair declared by a topology file, publishes the result to NATS
// JetStream, and advances the commit coordinator's watermark as the
// replication slot's confirmed LSN moves forward. Grounded in
// apps/cdc-worker/cmd/worker/main.go, generalized past insert-only
// forwarding to the full codec pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/formatter"
	"github.com/arc-self/streamcodec/internal/codec/parser"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/value"
	"github.com/arc-self/streamcodec/internal/config"
	"github.com/arc-self/streamcodec/internal/coordinator"
	"github.com/arc-self/streamcodec/internal/replication"
	"github.com/arc-self/streamcodec/internal/storage/pgstore"
	"github.com/arc-self/streamcodec/internal/telemetry"
	"github.com/arc-self/streamcodec/internal/transport/natsclient"
)

const (
	slotName        = "records_slot"
	publicationName = "records_pub"
	outputPlugin    = "pgoutput"
	standbyTimeout  = 10 * time.Second
	thisWorkerID    = 0
	thisSinkID      = 0
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topologyPath := os.Getenv("TOPOLOGY_PATH")
	if topologyPath == "" {
		topologyPath = "topology.yaml"
	}
	topo, err := config.LoadTopology(topologyPath)
	if err != nil {
		logger.Fatal("failed to load topology", zap.Error(err))
	}

	vaultAddr := envOr("VAULT_ADDR", "http://localhost:8200")
	vaultToken := envOr("VAULT_TOKEN", "root")
	secretPath := envOr("VAULT_SECRET_PATH", "secret/data/arc/stream-worker")

	vaultManager, err := config.NewSecretManager(vaultAddr, vaultToken)
	if err != nil {
		logger.Fatal("vault connection failed", zap.Error(err))
	}
	secrets, err := vaultManager.GetKV2(secretPath)
	if err != nil {
		logger.Fatal("failed to load secrets from vault", zap.Error(err))
	}

	pgURL, err := config.RequireString(secrets, "PG_URL")
	if err != nil {
		logger.Fatal("vault secret", zap.Error(err))
	}
	natsURL, err := config.RequireString(secrets, "NATS_URL")
	if err != nil {
		logger.Fatal("vault secret", zap.Error(err))
	}
	otelEndpoint := envOr("OTEL_ENDPOINT", "localhost:4317")

	tp, err := telemetry.InitTracer(ctx, "stream-worker", otelEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	mp, err := telemetry.InitMeterProvider(ctx, "stream-worker", otelEndpoint)
	if err != nil {
		logger.Fatal("failed to init meter provider", zap.Error(err))
	}
	defer mp.Shutdown(ctx)

	pipelineMetrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		logger.Fatal("failed to register pipeline metrics", zap.Error(err))
	}

	pgReplicationURL, pgQueryURL := splitReplicationDSN(pgURL)

	pool, err := pgxpool.New(ctx, pgQueryURL)
	if err != nil {
		logger.Fatal("failed to open pgxpool", zap.Error(err))
	}
	defer pool.Close()

	if err := pgstore.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("failed to ensure worker_commit_state schema", zap.Error(err))
	}

	commitCoordinator := coordinator.New(logger)
	commitCoordinator.RegisterWorker(pgstore.NewWorkerCommitStore(pool, thisWorkerID, logger))

	natsClient, err := natsclient.NewClient(natsURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.ProvisionStreams(); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	recordParser, recordFormatter, err := buildPipeline(topo)
	if err != nil {
		logger.Fatal("failed to build codec pipeline from topology", zap.Error(err))
	}

	conn, err := pgconn.Connect(ctx, pgReplicationURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres for replication", zap.Error(err))
	}
	defer conn.Close(ctx)
	logger.Info("connected to postgres for logical replication")

	if _, err := pglogrepl.CreateReplicationSlot(ctx, conn, slotName, outputPlugin,
		pglogrepl.CreateReplicationSlotOptions{Temporary: false},
	); err != nil {
		logger.Warn("replication slot creation", zap.Error(err))
	} else {
		logger.Info("replication slot created", zap.String("slot", slotName))
	}

	sysident, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		logger.Fatal("IdentifySystem failed", zap.Error(err))
	}

	startLSN := resolveStartLSN(ctx, logger, pgQueryURL, sysident.XLogPos)

	pluginArgs := []string{
		"proto_version '2'",
		fmt.Sprintf("publication_names '%s'", publicationName),
	}
	if err := pglogrepl.StartReplication(ctx, conn, slotName, startLSN,
		pglogrepl.StartReplicationOptions{PluginArgs: pluginArgs},
	); err != nil {
		logger.Fatal("StartReplication failed", zap.Error(err))
	}
	logger.Info("logical replication started", zap.String("slot", slotName))

	decoder := replication.NewDecoder(logger)
	clientXLogPos := startLSN
	nextStandbyDeadline := time.Now().Add(standbyTimeout)

	inSubject := "records.in." + topo.Table
	outSubject := "records.out." + topo.Table

	for {
		if ctx.Err() != nil {
			logger.Info("worker shutting down gracefully")
			return
		}

		if time.Now().After(nextStandbyDeadline) {
			if err := pglogrepl.SendStandbyStatusUpdate(ctx, conn,
				pglogrepl.StandbyStatusUpdate{WALWritePosition: clientXLogPos},
			); err != nil {
				logger.Error("StandbyStatusUpdate failed", zap.Error(err))
			}
			watermark := uint64(clientXLogPos)
			if err := commitCoordinator.AcceptFinalizedTimestamp(thisWorkerID, thisSinkID, &watermark); err != nil {
				logger.Error("commit coordinator advance failed", zap.Error(err))
			}
			nextStandbyDeadline = time.Now().Add(standbyTimeout)
		}

		rawMsg, err := conn.ReceiveMessage(ctx)
		if err != nil {
			logger.Error("ReceiveMessage failed", zap.Error(err))
			continue
		}

		if errResp, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			logger.Fatal("postgres WAL error", zap.String("message", errResp.Message))
		}

		copyData, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			continue
		}

		switch copyData.Data[0] {
		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(copyData.Data[1:])
			if err != nil {
				logger.Error("ParseXLogData failed", zap.Error(err))
				continue
			}

			logicalMsg, err := pglogrepl.ParseV2(xld.WALData, false)
			if err != nil {
				logger.Error("ParseV2 failed", zap.Error(err))
				continue
			}

			envelope, err := decodeMessage(decoder, logicalMsg)
			if err != nil {
				logger.Error("decode failed", zap.Error(err))
			} else if envelope != nil {
				pipelineMetrics.Decoded.Add(ctx, 1)
				if _, err := natsClient.JS.Publish(inSubject, envelope); err != nil {
					logger.Error("NATS publish (in) failed", zap.Error(err))
				}
				if err := runPipeline(ctx, recordParser, recordFormatter, envelope, int64(xld.WALStart), natsClient, outSubject, pipelineMetrics); err != nil {
					logger.Error("pipeline failed", zap.Error(err))
					pipelineMetrics.Rejected.Add(ctx, 1)
				}
			}

			clientXLogPos = xld.WALStart + pglogrepl.LSN(len(xld.WALData))

		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
			if err != nil {
				logger.Error("ParsePrimaryKeepaliveMessage failed", zap.Error(err))
				continue
			}
			if pkm.ReplyRequested {
				nextStandbyDeadline = time.Time{}
			}

		default:
			logger.Warn("unknown copy data type", zap.Uint8("type", copyData.Data[0]))
		}
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// splitReplicationDSN derives the replication-mode DSN pglogrepl needs
// and the plain query DSN pgx/pgxpool need from a single configured
// PG_URL: pgconn's replication connection requires replication=database
// in the DSN, which a normal pgx query connection rejects outright.
func splitReplicationDSN(pgURL string) (replicationURL, queryURL string) {
	replicationURL = pgURL
	if !strings.Contains(pgURL, "replication=") {
		if strings.Contains(pgURL, "?") {
			replicationURL = pgURL + "&replication=database"
		} else {
			replicationURL = pgURL + "?replication=database"
		}
	}

	queryURL = strings.ReplaceAll(pgURL, "?replication=database&", "?")
	queryURL = strings.ReplaceAll(queryURL, "&replication=database", "")
	queryURL = strings.ReplaceAll(queryURL, "?replication=database", "")
	return replicationURL, queryURL
}

// resolveStartLSN reads the slot's confirmed_flush_lsn through a plain
// pgx connection (the replication connection can't run SQL) so restarts
// resume from where they left off instead of skipping everything
// written since the slot was created.
func resolveStartLSN(ctx context.Context, logger *zap.Logger, pgQueryURL string, fallback pglogrepl.LSN) pglogrepl.LSN {
	pgxConn, err := pgx.Connect(ctx, pgQueryURL)
	if err != nil {
		logger.Warn("failed to open pgx connection for LSN resolution", zap.Error(err))
		return fallback
	}
	defer pgxConn.Close(ctx)

	var confirmedLSNStr *string
	err = pgxConn.QueryRow(ctx,
		"SELECT confirmed_flush_lsn::text FROM pg_replication_slots WHERE slot_name = $1",
		slotName,
	).Scan(&confirmedLSNStr)
	if err != nil || confirmedLSNStr == nil || *confirmedLSNStr == "" {
		if err != nil {
			logger.Warn("LSN query failed, starting from current WAL position", zap.Error(err))
		}
		return fallback
	}

	lsn, err := pglogrepl.ParseLSN(*confirmedLSNStr)
	if err != nil {
		logger.Warn("failed to parse confirmed_flush_lsn, starting from current WAL position",
			zap.String("lsn", *confirmedLSNStr), zap.Error(err))
		return fallback
	}
	logger.Info("resuming replication from confirmed_flush_lsn", zap.String("lsn", *confirmedLSNStr))
	return lsn
}

func decodeMessage(decoder *replication.Decoder, logicalMsg pglogrepl.Message) ([]byte, error) {
	switch msg := logicalMsg.(type) {
	case *pglogrepl.RelationMessageV2:
		decoder.RegisterRelation(msg)
		return nil, nil
	case *pglogrepl.InsertMessageV2:
		return decoder.DecodeInsert(msg)
	case *pglogrepl.UpdateMessageV2:
		return decoder.DecodeUpdate(msg)
	case *pglogrepl.DeleteMessageV2:
		return decoder.DecodeDelete(msg)
	default:
		return nil, nil
	}
}

// buildPipeline constructs the parser/formatter pair the topology
// declares. Only the "debezium" parser kind is wired here since that's
// what the replication decoder produces; other topologies (delimited,
// jsonlines, identity, transparent) are first-class per the codec layer
// but have no transport source in this command.
func buildPipeline(topo *config.Topology) (parser.Parser, formatter.Formatter, error) {
	var dbType parser.DebeziumDBType
	if topo.ParserSettings["db_type"] == "mongodb" {
		dbType = parser.DebeziumMongoDB
	}

	p := parser.NewDebeziumMessageParser(nil, topo.ValueFields, parser.DebeziumStandardSeparator, dbType)
	f := formatter.NewJsonLinesFormatter(topo.ValueFields)
	return p, f, nil
}

// runPipeline parses one decoded envelope, removes per-field errors by
// failing the row on the first one (the simplest ErrorRemovalLogic a
// host can supply), formats the clean row, and publishes the result.
func runPipeline(ctx context.Context, p parser.Parser, f formatter.Formatter, envelope []byte, ts int64, natsClient *natsclient.Client, outSubject string, metrics *telemetry.PipelineMetrics) error {
	events, err := p.Parse(reader.KeyValue(nil, envelope, false, true))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	for _, evt := range events {
		parsed, err := evt.RemoveErrors(failFastErrorRemoval)
		if err != nil {
			return fmt.Errorf("row rejected: %w", err)
		}
		if parsed.IsAdvanceTime() {
			continue
		}
		metrics.Parsed.Add(ctx, 1)

		var key value.Key
		if fields, ok := parsed.Key(); ok {
			key = value.KeyFromFields(fields)
		}

		diff := 1
		if parsed.IsDelete() || parsed.IsUpsertDelete() {
			diff = -1
		}

		fmtCtx, err := f.Format(key, parsed.Values(), ts, diff)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		for _, payload := range fmtCtx.Payloads {
			if _, err := natsClient.JS.Publish(outSubject, payload); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			metrics.Published.Add(ctx, 1)
		}
	}
	return nil
}

func failFastErrorRemoval(fields []event.FallibleValue) ([]value.Value, error) {
	values := make([]value.Value, len(fields))
	for i, f := range fields {
		if f.IsError() {
			return nil, f.Err
		}
		values[i] = f.Value
	}
	return values, nil
}
