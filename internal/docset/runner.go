package docset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recmirror/internal/config"
	"recmirror/internal/domain"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
)

// Runner refreshes an external documentation set: fetch every page from the
// upstream docs API, render it to markdown, publish the result into the
// mirror repository. One-shot per job run; no session tracking.
type Runner struct {
	cfg    config.DocSetConfig
	http   *http.Client
	mirror domain.MirrorRepository
	logger *zerolog.Logger
}

func NewRunner(cfg config.DocSetConfig, mirror domain.MirrorRepository, logger *zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		http:   &http.Client{Timeout: 60 * time.Second},
		mirror: mirror,
		logger: logger,
	}
}

type docPage struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type docIndex struct {
	Pages []docPage `json:"pages"`
}

func (r *Runner) Run(ctx context.Context, job *models.CronJob, progress func(models.DocsSyncState)) error {
	startedAt := time.Now()
	report := func(phase string, current, total int, message string) {
		if progress == nil {
			return
		}
		state := models.DocsSyncState{
			JobID:     job.ID,
			StartedAt: startedAt,
			Phase:     phase,
			Current:   current,
			Total:     total,
			Message:   message,
		}
		if job.OwnerID != nil {
			state.OwnerID = *job.OwnerID
		}
		progress(state)
	}

	report(models.DocsPhaseInit, 0, 0, "loading page index")
	index, err := r.fetchIndex(ctx)
	if err != nil {
		return fmt.Errorf("fetch doc index: %w", err)
	}

	total := len(index.Pages)
	pages := make([]docPage, 0, total)
	for i, page := range index.Pages {
		report(models.DocsPhaseFetching, i+1, total, page.Slug)
		fetched, err := r.fetchPage(ctx, page.Slug)
		if err != nil {
			// One broken page does not abort the whole refresh.
			r.logger.Warn().Err(err).Str("slug", page.Slug).Msg("failed to fetch doc page, skipping")
			continue
		}
		pages = append(pages, *fetched)
	}
	if len(pages) == 0 {
		return fmt.Errorf("no documentation pages could be fetched")
	}

	report(models.DocsPhaseRendering, 0, len(pages), "")
	rendered := make(map[string][]byte, len(pages)+1)
	for i, page := range pages {
		report(models.DocsPhaseRendering, i+1, len(pages), page.Slug)
		rendered["docs/"+page.Slug+".md"] = renderPage(page)
	}
	rendered["README.md"] = renderIndex(pages)

	report(models.DocsPhasePublishing, 0, len(rendered), "")
	if err := r.mirror.EnsureRepo(ctx, r.cfg.RepoName); err != nil {
		return fmt.Errorf("ensure docs repo: %w", err)
	}

	published := 0
	for path, content := range rendered {
		message := fmt.Sprintf("[Automated] Refresh documentation page %s", path)
		if err := r.mirror.WriteFile(ctx, r.cfg.RepoName, path, content, message); err != nil {
			return fmt.Errorf("publish %s: %w", path, err)
		}
		published++
		report(models.DocsPhasePublishing, published, len(rendered), path)
	}

	report(models.DocsPhaseDone, published, len(rendered), "")
	r.logger.Info().
		Int64("job_id", job.ID).
		Int("pages", len(pages)).
		Msg("documentation set refreshed")
	return nil
}

func (r *Runner) fetchIndex(ctx context.Context) (*docIndex, error) {
	body, err := r.get(ctx, r.cfg.BaseURL+"/v1/docs")
	if err != nil {
		return nil, err
	}
	var index docIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &index, nil
}

func (r *Runner) fetchPage(ctx context.Context, slug string) (*docPage, error) {
	body, err := r.get(ctx, r.cfg.BaseURL+"/v1/docs/"+url.PathEscape(slug))
	if err != nil {
		return nil, err
	}
	var page docPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if page.Slug == "" {
		page.Slug = slug
	}
	return &page, nil
}

func (r *Runner) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docs API returned %d for %s", resp.StatusCode, endpoint)
	}
	return io.ReadAll(resp.Body)
}

func renderPage(page docPage) []byte {
	var b strings.Builder
	b.WriteString("# " + page.Title + "\n\n")
	b.WriteString(strings.TrimSpace(page.Content))
	b.WriteString("\n")
	return []byte(b.String())
}

func renderIndex(pages []docPage) []byte {
	var b strings.Builder
	b.WriteString("# Documentation\n\n")
	b.WriteString(fmt.Sprintf("Refreshed %s.\n\n", time.Now().Format("2006-01-02")))
	for _, page := range pages {
		b.WriteString(fmt.Sprintf("- [%s](docs/%s.md)\n", page.Title, page.Slug))
	}
	return []byte(b.String())
}
