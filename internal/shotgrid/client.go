package shotgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leecher/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when Shotgrid answers 404 for an entity.
var ErrNotFound = errors.New("shotgrid entity not found")

const (
	apiPrefix       = "/api/v1"
	tokenPath       = apiPrefix + "/auth/access_token"
	searchMediaType = "application/vnd+shotgun.api3_array+json"
)

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	PageSize      int
	RPS           float64
	Timeout       time.Duration
	HTTPClient    *http.Client
	FieldsMapping models.FieldsMapping
	Logger        *zerolog.Logger
}

// Client talks to the Shotgrid REST API with script credentials.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	fields   models.FieldsMapping
	log      zerolog.Logger
}

// NewClient builds a client that authenticates with the client-credentials
// grant (script name as client id, script key as secret).
func NewClient(ctx context.Context, creds models.ShotgridCredentials, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultShotgridPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}

	baseURL := strings.TrimRight(creds.URL, "/")
	oauthCfg := clientcredentials.Config{
		ClientID:     creds.ScriptName,
		ClientSecret: creds.ScriptKey,
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	httpClient := oauthCfg.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	httpClient.Timeout = opts.Timeout

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "shotgrid").Str("site", baseURL).Logger()
	} else {
		logger = zerolog.Nop()
	}

	return &Client{
		baseURL:  baseURL,
		http:     httpClient,
		limiter:  limiter,
		pageSize: opts.PageSize,
		fields:   opts.FieldsMapping,
		log:      logger,
	}
}

// FetchHierarchy loads the project and every entity hanging off it.
// A missing project yields a Hierarchy with a nil Project.
func (c *Client) FetchHierarchy(ctx context.Context, projectID int64) (*Hierarchy, error) {
	project, err := c.FindProject(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		return &Hierarchy{}, nil
	}
	if err != nil {
		return nil, err
	}

	h := &Hierarchy{Project: project}
	if h.Steps, err = c.steps(ctx); err != nil {
		return nil, err
	}
	if h.Assets, err = c.assets(ctx, projectID); err != nil {
		return nil, err
	}
	if h.Episodes, err = c.episodes(ctx, projectID); err != nil {
		return nil, err
	}
	if h.Sequences, err = c.sequences(ctx, projectID); err != nil {
		return nil, err
	}
	if h.Shots, err = c.shots(ctx, projectID); err != nil {
		return nil, err
	}
	if h.Tasks, err = c.tasks(ctx, projectID); err != nil {
		return nil, err
	}

	c.log.Debug().
		Int64("project_id", projectID).
		Int("assets", len(h.Assets)).
		Int("shots", len(h.Shots)).
		Int("tasks", len(h.Tasks)).
		Msg("hierarchy fetched")
	return h, nil
}

func (c *Client) FindProject(ctx context.Context, projectID int64) (*Project, error) {
	fields := []string{"name", "code"}
	q := url.Values{}
	q.Set("fields", c.fieldList("project", fields))

	var body struct {
		Data resource `json:"data"`
	}
	path := fmt.Sprintf("%s/entity/projects/%d", apiPrefix, projectID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, "", &body); err != nil {
		return nil, err
	}
	r := c.view("project", body.Data)
	return &Project{ID: r.ID, Name: r.str("name"), Code: r.str("code")}, nil
}

func (c *Client) steps(ctx context.Context) ([]Step, error) {
	rows, err := c.findAll(ctx, "steps", "step", 0, []string{"code", "short_name"})
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(rows))
	for _, r := range rows {
		steps = append(steps, Step{ID: r.ID, Code: r.str("code"), ShortName: r.str("short_name")})
	}
	return steps, nil
}

func (c *Client) assets(ctx context.Context, projectID int64) ([]Asset, error) {
	rows, err := c.findAll(ctx, "assets", "asset", projectID, []string{"code", "sg_asset_type"})
	if err != nil {
		return nil, err
	}
	assets := make([]Asset, 0, len(rows))
	for _, r := range rows {
		assets = append(assets, Asset{ID: r.ID, Code: r.str("code"), AssetType: r.str("sg_asset_type")})
	}
	return assets, nil
}

func (c *Client) episodes(ctx context.Context, projectID int64) ([]Episode, error) {
	rows, err := c.findAll(ctx, "episodes", "episode", projectID, []string{"code"})
	if err != nil {
		return nil, err
	}
	episodes := make([]Episode, 0, len(rows))
	for _, r := range rows {
		episodes = append(episodes, Episode{ID: r.ID, Name: r.str("code")})
	}
	return episodes, nil
}

func (c *Client) sequences(ctx context.Context, projectID int64) ([]Sequence, error) {
	rows, err := c.findAll(ctx, "sequences", "sequence", projectID, []string{"code", "episode"})
	if err != nil {
		return nil, err
	}
	sequences := make([]Sequence, 0, len(rows))
	for _, r := range rows {
		sequences = append(sequences, Sequence{ID: r.ID, Name: r.str("code"), Episode: r.ref("episode")})
	}
	return sequences, nil
}

func (c *Client) shots(ctx context.Context, projectID int64) ([]Shot, error) {
	fields := []string{"code", "sg_cut_in", "sg_cut_out", "sg_sequence", "sg_episode", "assets"}
	rows, err := c.findAll(ctx, "shots", "shot", projectID, fields)
	if err != nil {
		return nil, err
	}
	shots := make([]Shot, 0, len(rows))
	for _, r := range rows {
		shot := Shot{
			ID:           r.ID,
			Code:         r.str("code"),
			Sequence:     r.ref("sg_sequence"),
			Episode:      r.ref("sg_episode"),
			LinkedAssets: r.refs("assets"),
		}
		if r.has("sg_cut_in") || r.has("sg_cut_out") {
			shot.Params = &ShotParams{CutIn: r.int("sg_cut_in"), CutOut: r.int("sg_cut_out")}
		}
		shots = append(shots, shot)
	}
	return shots, nil
}

func (c *Client) tasks(ctx context.Context, projectID int64) ([]Task, error) {
	rows, err := c.findAll(ctx, "tasks", "task", projectID, []string{"content", "entity", "step"})
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, Task{ID: r.ID, Content: r.str("content"), Entity: r.ref("entity"), Step: r.ref("step")})
	}
	return tasks, nil
}

// findAll pages through an entity collection. projectID 0 means unscoped.
func (c *Client) findAll(ctx context.Context, collection, entity string, projectID int64, fields []string) ([]view, error) {
	var out []view
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("fields", c.fieldList(entity, fields))
		q.Set("page[size]", strconv.Itoa(c.pageSize))
		q.Set("page[number]", strconv.Itoa(page))
		if projectID > 0 {
			q.Set("filter[project.Project.id]", strconv.FormatInt(projectID, 10))
		}

		var body struct {
			Data []resource `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, apiPrefix+"/entity/"+collection, q, nil, "", &body); err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}
		for _, r := range body.Data {
			out = append(out, c.view(entity, r))
		}
		if len(body.Data) < c.pageSize {
			return out, nil
		}
	}
}

// search runs a filtered query through the _search endpoint.
func (c *Client) search(ctx context.Context, collection string, filters [][]any, fields []string, sort string, limit int) ([]view, error) {
	payload := map[string]any{"filters": filters}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}

	q := url.Values{}
	q.Set("fields", strings.Join(fields, ","))
	if sort != "" {
		q.Set("sort", sort)
	}
	if limit > 0 {
		q.Set("page[size]", strconv.Itoa(limit))
	}

	var body struct {
		Data []resource `json:"data"`
	}
	path := apiPrefix + "/entity/" + collection + "/_search"
	if err := c.do(ctx, http.MethodPost, path, q, raw, searchMediaType, &body); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	out := make([]view, 0, len(body.Data))
	for _, r := range body.Data {
		out = append(out, view{resource: r})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shotgrid %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("shotgrid %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode shotgrid response: %w", err)
	}
	return nil
}

// fieldList applies the per-entity field remapping to requested fields.
func (c *Client) fieldList(entity string, fields []string) string {
	mapped := make([]string, len(fields))
	for i, f := range fields {
		mapped[i] = c.fieldName(entity, f)
	}
	return strings.Join(mapped, ",")
}

func (c *Client) fieldName(entity, field string) string {
	if c.fields == nil {
		return field
	}
	perEntity, ok := c.fields[entity].(map[string]any)
	if !ok {
		return field
	}
	if renamed, ok := perEntity[field].(string); ok && renamed != "" {
		return renamed
	}
	return field
}

func (c *Client) view(entity string, r resource) view {
	return view{resource: r, rename: func(field string) string { return c.fieldName(entity, field) }}
}
