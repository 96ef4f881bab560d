// Package api exposes the metadata-driven entities as JSON:API endpoints.
package api

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/jsonapi"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/repository"
	"jsonapi-backend/internal/store"
	"jsonapi-backend/internal/validation"
)

type Handler struct {
	store     *store.Store
	registry  *metadata.Registry
	paging    config.PagingConfig
	checker   *repository.Checker
	formatter validation.Formatter
	rules     *ruleCache
	logger    *zap.Logger
}

type Option func(*Handler)

// WithFormatter replaces the English validation messages.
func WithFormatter(f validation.Formatter) Option {
	return func(h *Handler) { h.formatter = f }
}

func NewHandler(s *store.Store, reg *metadata.Registry, paging config.PagingConfig, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		store:     s,
		registry:  reg,
		paging:    paging,
		checker:   repository.NewChecker(s, reg, logger),
		formatter: validation.DefaultFormatter{},
		rules:     newRuleCache(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.store.DB.PingContext(c.UserContext()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// List handles GET /api/:type
func (h *Handler) List(c *fiber.Ctx) error {
	e, repo, err := h.resolve(c)
	if err != nil {
		return err
	}
	q, err := h.parseQuery(c, e)
	if err != nil {
		return err
	}

	page, err := repo.Index(c.UserContext(), params(q))
	if err != nil {
		return err
	}
	return render(c, fiber.StatusOK, fiber.Map{
		"data": h.resources(e, page.Rows, q.Fields),
		"meta": fiber.Map{"total": page.Total, "offset": page.Offset, "limit": page.Limit},
	})
}

// Get handles GET /api/:type/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	e, repo, err := h.resolve(c)
	if err != nil {
		return err
	}
	id, err := repository.ParseID(e, c.Params("id"))
	if err != nil {
		return err
	}
	q, err := h.parseQuery(c, e)
	if err != nil {
		return err
	}

	row, err := repo.Read(c.UserContext(), id, q.Includes)
	if err != nil {
		return err
	}
	return render(c, fiber.StatusOK, fiber.Map{"data": h.resource(e, row, q.Fields)})
}

// GetRelationship handles GET /api/:type/:id/:relationship
func (h *Handler) GetRelationship(c *fiber.Ctx) error {
	e, repo, err := h.resolve(c)
	if err != nil {
		return err
	}
	id, err := repository.ParseID(e, c.Params("id"))
	if err != nil {
		return err
	}
	name := c.Params("relationship")
	rel, ok := h.registry.Relationship(e.Name, name)
	if !ok {
		return UnknownRelationshipError(e.ResourceType(), name)
	}
	target := h.registry.GetEntity(rel.TargetEntity())
	q, err := h.parseQuery(c, target)
	if err != nil {
		return err
	}

	res, err := repo.ReadRelationship(c.UserContext(), id, name, params(q))
	if err != nil {
		return err
	}
	return render(c, fiber.StatusOK, fiber.Map{"data": h.related(target.Name, res, q.Fields)})
}

// Create handles POST /api/:type
func (h *Handler) Create(c *fiber.Ctx) error {
	e, repo, err := h.resolve(c)
	if err != nil {
		return err
	}
	p := jsonapi.NewDataParser(h.rules.data(h.registry, e, validation.ModeCreate), h.formatter,
		validation.WithChecker(h.checker), validation.WithLogger(h.logger))
	if !p.ParseBytes(c.UserContext(), c.Body()) {
		return &jsonapi.ValidationError{Collection: *p.Errors()}
	}

	w := write(p)
	if !e.PrimaryKey.Generated {
		w.Attributes[e.PrimaryKey.Field] = p.ID()
	}
	id, err := repo.Create(c.UserContext(), w)
	if err != nil {
		return err
	}
	row, err := repo.Read(c.UserContext(), id, nil)
	if err != nil {
		return err
	}

	c.Location(fmt.Sprintf("/api/%s/%s", e.ResourceType(), url.PathEscape(fmt.Sprint(id))))
	return render(c, fiber.StatusCreated, fiber.Map{"data": h.resource(e, row, nil)})
}

// Update handles PATCH /api/:type/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	e, repo, err := h.resolve(c)
	if err != nil {
		return err
	}
	raw := c.Params("id")
	id, err := repository.ParseID(e, raw)
	if err != nil {
		return err
	}

	p := jsonapi.NewDataParser(h.rules.data(h.registry, e, validation.ModeUpdate), h.formatter,
		validation.WithChecker(h.checker), validation.WithLogger(h.logger)).
		ExpectID(raw).
		IgnoreUnknowns()
	p.SetValue(validation.ExceptIDKey, id)
	if !p.ParseBytes(c.UserContext(), c.Body()) {
		return &jsonapi.ValidationError{Collection: *p.Errors()}
	}

	if err := repo.Update(c.UserContext(), id, write(p)); err != nil {
		return err
	}
	row, err := repo.Read(c.UserContext(), id, nil)
	if err != nil {
		return err
	}
	return render(c, fiber.StatusOK, fiber.Map{"data": h.resource(e, row, nil)})
}

// Delete handles DELETE /api/:type/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	e, repo, err := h.resolve(c)
	if err != nil {
		return err
	}
	id, err := repository.ParseID(e, c.Params("id"))
	if err != nil {
		return err
	}
	if err := repo.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) resolve(c *fiber.Ctx) (*metadata.Entity, *repository.Repository, error) {
	typ := c.Params("type")
	e := h.registry.EntityByType(typ)
	if e == nil {
		return nil, nil, UnknownTypeError(typ)
	}
	repo, err := repository.New(h.store, h.registry, e.Name, h.logger, repository.WithPaging(h.paging))
	if err != nil {
		return nil, nil, err
	}
	return e, repo, nil
}

func (h *Handler) parseQuery(c *fiber.Ctx, e *metadata.Entity) (jsonapi.Query, error) {
	p := jsonapi.NewQueryParser(h.rules.query(h.registry, e, h.paging), h.formatter,
		validation.WithLogger(h.logger))
	if err := p.Assert(c.UserContext(), queryValues(c)); err != nil {
		return jsonapi.Query{}, err
	}
	return p.Query(), nil
}

func queryValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		values.Add(string(k), string(v))
	})
	return values
}

func params(q jsonapi.Query) repository.Params {
	return repository.Params{
		Filters:  q.Filters,
		Sorts:    q.Sorts,
		Includes: q.Includes,
		Offset:   q.Offset,
		Limit:    q.Limit,
	}
}

func write(p *jsonapi.DataParser) repository.Write {
	attrs := make(map[string]any, len(p.Attributes()))
	for k, v := range p.Attributes() {
		attrs[k] = v
	}
	return repository.Write{Attributes: attrs, ToOne: p.ToOne(), ToMany: p.ToMany()}
}
