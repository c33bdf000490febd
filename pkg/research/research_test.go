package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

type stubReader struct {
	files map[string]string
}

func (s *stubReader) ReadFile(ctx context.Context, path string) (string, bool, error) {
	content, ok := s.files[path]
	return content, ok, nil
}

func TestInferFilesFromTransactionControllerAction(t *testing.T) {
	files := inferFilesFromTransaction("Controller/products/show")
	assert.Equal(t, []string{"app/controllers/products_controller.rb", "app/models/product.rb"}, files)
}

func TestInferFilesFromTransactionNamespacedController(t *testing.T) {
	files := inferFilesFromTransaction("Controller/api/v3/reviews/create")
	assert.Equal(t, []string{"app/controllers/api/v3/reviews_controller.rb", "app/models/review.rb"}, files)
}

func TestInferFilesFromTransactionSidekiqJob(t *testing.T) {
	files := inferFilesFromTransaction("Sidekiq/ImportJob")
	assert.Equal(t, []string{"app/jobs/import_job.rb"}, files)
}

func TestInferFilesFromTransactionUnknownPrefixReturnsEmpty(t *testing.T) {
	assert.Empty(t, inferFilesFromTransaction("Rake/db:migrate"))
}

func TestInferFilesFromTracesExtractsAppPaths(t *testing.T) {
	traces := model.TraceData{
		ErrorTraces: []map[string]any{
			{"error.stack_trace": "gems/activerecord-7.0/lib.rb:1\napp/models/order.rb:42\napp/controllers/orders_controller.rb:10"},
		},
	}
	files := inferFilesFromTraces(traces)
	assert.Equal(t, []string{"app/models/order.rb", "app/controllers/orders_controller.rb"}, files)
}

func TestResearchDedupesAndPreFetchesFiles(t *testing.T) {
	reader := &stubReader{files: map[string]string{
		"app/controllers/orders_controller.rb": "line1\nline2\n",
	}}
	err := model.ErrorGroup{Transaction: "Controller/orders/show"}
	traces := model.TraceData{}

	ctx := Research(context.Background(), nil, err, traces, reader, nil, nil)
	assert.Contains(t, ctx.LikelyFiles, "app/controllers/orders_controller.rb")
	assert.Equal(t, "line1\nline2\n", ctx.FilePreviews["app/controllers/orders_controller.rb"])
	assert.NotContains(t, ctx.FilePreviews, "app/models/order.rb")
}

func TestResearchTruncatesLongPreviews(t *testing.T) {
	lines := make([]string, 150)
	for i := range lines {
		lines[i] = "x"
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	reader := &stubReader{files: map[string]string{"app/controllers/orders_controller.rb": content}}
	err := model.ErrorGroup{Transaction: "Controller/orders/show"}

	ctx := Research(context.Background(), nil, err, model.TraceData{}, reader, nil, nil)
	preview := ctx.FilePreviews["app/controllers/orders_controller.rb"]
	require.NotEmpty(t, preview)
	assert.Contains(t, preview, "# ... truncated")
}

func TestCamelToSnakeConvertsCases(t *testing.T) {
	assert.Equal(t, "import_job", camelToSnake("ImportJob"))
	assert.Equal(t, "cleanup_worker", camelToSnake("CleanupWorker"))
}
