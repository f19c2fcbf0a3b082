package driver

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/domain"
	"github.com/xiaoli123/robomongo/internal/errors"
	"github.com/xiaoli123/robomongo/util"
)

// collectionFindRe matches the scripts the orchestrator generates for
// collections: db.getCollection('<name>').find({}).
var collectionFindRe = regexp.MustCompile(`^db\.getCollection\('(.*)'\)\.find\(\{\}\)$`)

// DefaultDocumentLimit caps how many documents a shell query prints.
const DefaultDocumentLimit = 50

// Executor implements domain.Executor for the generated collection
// queries.  Shell execution semantics in general belong to an external
// collaborator; this executor covers exactly the script shape the
// orchestrator produces and rejects everything else with
// errors.ErrUnsupportedScript.
type Executor struct {
	Out    io.Writer // received documents, one JSON value per line
	Limit  int64     // 0 → DefaultDocumentLimit
	logger *util.Logger
}

// NewExecutor returns an executor writing documents to out.
func NewExecutor(out io.Writer, logger *util.Logger) *Executor {
	return &Executor{Out: out, logger: logger}
}

// Execute runs script against the server described by settings.
func (e *Executor) Execute(ctx context.Context, settings *config.ConnectionSettings, script domain.ScriptInfo) error {
	collection, ok := parseCollectionFind(script.Script)
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnsupportedScript, script.Script)
	}

	dbName := script.Database
	if dbName == "" {
		dbName = settings.DefaultDatabase
	}
	if dbName == "" {
		return &errors.ConfigError{Field: "database", Message: "no target database for shell script"}
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(BuildURI(settings)))
	if err != nil {
		return errors.Wrap("connect", settings.FullAddress(), err)
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	limit := e.Limit
	if limit == 0 {
		limit = DefaultDocumentLimit
	}

	cur, err := client.Database(dbName).Collection(collection).
		Find(ctx, bson.D{}, options.Find().SetLimit(limit))
	if err != nil {
		return errors.Wrap("find", settings.FullAddress(), err)
	}
	defer cur.Close(ctx) //nolint:errcheck

	n := 0
	for cur.Next(ctx) {
		doc, err := bson.MarshalExtJSON(cur.Current, false, false)
		if err != nil {
			return fmt.Errorf("rendering document: %w", err)
		}
		if e.Out != nil {
			fmt.Fprintln(e.Out, string(doc))
		}
		n++
	}
	if err := cur.Err(); err != nil {
		return errors.Wrap("cursor", settings.FullAddress(), err)
	}

	e.logger.Verbose("driver: %d document(s) from %s.%s", n, dbName, collection)
	return nil
}

// parseCollectionFind extracts the collection name from a generated
// find script, undoing the backslash escaping applied at build time.
func parseCollectionFind(script string) (string, bool) {
	m := collectionFindRe.FindStringSubmatch(script)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], `\\`, `\`), true
}
