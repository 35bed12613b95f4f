// Package quickstart runs the getting-started walkthrough: provision a
// database and container, scale its throughput, write and read a few
// families, then query them back page by page.
package quickstart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// DefaultQuery selects three of the four demo families written by this run.
const DefaultQuery = "SELECT * FROM Family WHERE Family.lastName IN ('Andersen', 'Wakefield', 'Johnson') AND Family.runId = @runId"

// RunIDParameter is bound to the run id when a query references it.
const RunIDParameter = "@runId"

// ErrReadsFailed is returned when one or more point reads failed.
var ErrReadsFailed = errors.New("reading families failed")

// Options name the resources the walkthrough provisions.
type Options struct {
	DatabaseID          string
	ContainerID         string
	PartitionKeyPath    string
	Throughput          int
	ThroughputIncrement int
	Query               string
	MaxItemCount        int
	Logger              zerolog.Logger
}

// DefaultOptions returns the walkthrough defaults with logging disabled.
func DefaultOptions() Options {
	return Options{
		DatabaseID:          "db",
		ContainerID:         "items",
		PartitionKeyPath:    "/lastName",
		Throughput:          constants.MinThroughput,
		ThroughputIncrement: constants.ThroughputStep,
		Query:               DefaultQuery,
		MaxItemCount:        constants.DefaultPageSize,
		Logger:              zerolog.Nop(),
	}
}

// Report summarises a completed walkthrough.
type Report struct {
	RunID      string
	Database   *docdb.DatabaseHandle
	Container  *docdb.ContainerHandle
	Throughput int
	Families   []*Family
	// ReadFailures maps the id of each family that could not be read back to the error.
	ReadFailures map[string]error
	QueryIDs     []string
	Pages        int
	Charges      *docdb.ChargeTracker
}

// Run executes the walkthrough against client. The caller owns the client.
// A failed point read does not stop the walkthrough; Run then returns the
// completed report together with an error wrapping ErrReadsFailed.
func Run(ctx context.Context, client docdb.Client, opts Options) (*Report, error) {
	logger := opts.Logger
	report := &Report{
		RunID:        uuid.NewString(),
		ReadFailures: map[string]error{},
		Charges:      docdb.NewChargeTracker(),
	}

	var err error

	report.Database, err = client.Databases().CreateIfNotExists(ctx, opts.DatabaseID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	logger.Info().Str("database", report.Database.ID).Msg("checking database")

	report.Container, err = client.Containers().CreateIfNotExists(ctx, report.Database,
		opts.ContainerID, opts.PartitionKeyPath, opts.Throughput)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	logger.Info().
		Str("container", report.Container.ID).
		Str("partitionKeyPath", report.Container.PartitionKeyPath).
		Msg("checking container")

	report.Throughput, err = scaleThroughput(ctx, client, report.Container, opts)
	if err != nil {
		return nil, err
	}

	report.Families = Families()
	for _, family := range report.Families {
		family.RunID = report.RunID
	}

	err = createFamilies(ctx, client, report, logger)
	if err != nil {
		return nil, err
	}

	readFamilies(ctx, client, report, logger)

	err = queryFamilies(ctx, client, report, opts)
	if err != nil {
		return nil, err
	}

	logger.Info().Float64("totalRequestCharge", report.Charges.Total()).Int("operations", report.Charges.Count()).Msg("quickstart complete")

	if len(report.ReadFailures) > 0 {
		failures := make([]error, 0, len(report.ReadFailures))
		for _, family := range report.Families {
			if err, ok := report.ReadFailures[family.ID]; ok {
				failures = append(failures, err)
			}
		}

		return report, fmt.Errorf("%w: %w", ErrReadsFailed, errors.Join(failures...))
	}

	return report, nil
}

func scaleThroughput(ctx context.Context, client docdb.Client, container *docdb.ContainerHandle, opts Options) (int, error) {
	logger := opts.Logger

	current, err := client.Throughput().Read(ctx, container)
	if err != nil {
		return 0, fmt.Errorf("reading throughput: %w", err)
	}

	logger.Info().Int("throughput", current.Throughput).Msg("current throughput")

	replaced, err := client.Throughput().Replace(ctx, container, current.Throughput+opts.ThroughputIncrement)
	if err != nil {
		return 0, fmt.Errorf("replacing throughput: %w", err)
	}

	if replaced.ReplacePending {
		logger.Info().Msg("waiting for throughput replace")

		replaced, err = client.Throughput().PollUntilApplied(ctx, container)
		if err != nil {
			return 0, fmt.Errorf("waiting for throughput: %w", err)
		}
	}

	logger.Info().Int("throughput", replaced.Throughput).Msg("new throughput")

	return replaced.Throughput, nil
}

func createFamilies(ctx context.Context, client docdb.Client, report *Report, logger zerolog.Logger) error {
	for _, family := range report.Families {
		outcome, err := client.Items().Create(ctx, report.Container, family, nil)
		if err != nil {
			return fmt.Errorf("creating family %s: %w", family.ID, err)
		}

		report.Charges.AddOutcome("create", outcome)

		logger.Info().
			Str("id", family.ID).
			Float64("requestCharge", outcome.RequestCharge).
			Dur("latency", outcome.Latency).
			Msg("created family")
	}

	logger.Info().Float64("requestCharge", report.Charges.ByOperation()["create"]).Msg("created families")

	return nil
}

func readFamilies(ctx context.Context, client docdb.Client, report *Report, logger zerolog.Logger) {
	for _, family := range report.Families {
		outcome, err := client.Items().Read(ctx, report.Container, family.ID, docdb.NewPartitionKey(family.LastName))
		if err == nil {
			_, err = docdb.DecodeItem[Family](outcome)
		}

		if err != nil {
			report.ReadFailures[family.ID] = fmt.Errorf("reading family %s: %w", family.ID, err)
			logger.Error().Err(err).Str("id", family.ID).Msg("read family failed")

			continue
		}

		report.Charges.AddOutcome("read", outcome)
		logger.Info().
			Str("id", family.ID).
			Float64("requestCharge", outcome.RequestCharge).
			Dur("latency", outcome.Latency).
			Msg("read family")
	}
}

func queryFamilies(ctx context.Context, client docdb.Client, report *Report, opts Options) error {
	options := docdb.NewQueryOptions().
		WithMaxItemCount(opts.MaxItemCount).
		WithCrossPartition(true).
		WithMetrics(true)

	query := docdb.NewQuery(opts.Query)
	if strings.Contains(opts.Query, RunIDParameter) {
		query.WithParameter(RunIDParameter, report.RunID)
	}

	it := client.Queries().Execute(report.Container, query, options)
	defer it.Close()

	for it.HasMore() {
		page, err := it.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("querying families: %w", err)
		}

		ids := page.IDs()
		report.QueryIDs = append(report.QueryIDs, ids...)
		report.Pages++
		report.Charges.AddPage("query", page)

		opts.Logger.Info().
			Int("items", page.Count()).
			Float64("requestCharge", page.RequestCharge).
			Strs("ids", ids).
			Msg("query page")
	}

	return nil
}
