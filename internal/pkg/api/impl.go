package api

import (
	"cmp"
	"crypto/hmac"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/ranker"
	"github.com/ClawGameArena/ClawGame/internal/pkg/scorer"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/decred/slog"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
)

const agentContextKey = "agent"

type APIService struct {
	Engine *tournament.EngineService
	Agents *agent.RegistryService
	Scorer *scorer.ScorerService

	AdminToken string

	Now func() time.Time
	Log slog.Logger
}

func NewAPIService(i do.Injector) (*APIService, error) {
	result := &APIService{
		Engine: do.MustInvoke[*tournament.EngineService](i),
		Agents: do.MustInvoke[*agent.RegistryService](i),
		Scorer: do.MustInvoke[*scorer.ScorerService](i),

		AdminToken: do.MustInvokeNamed[string](i, "admin-token"),

		Now: time.Now,
		Log: do.MustInvoke[*common.LogService](i).Logger("API"),
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Register)

	return result, nil
}

func (s *APIService) Register(e *echo.Echo) {
	e.GET("/health", s.GetHealth)

	apiGroup := e.Group("/api/v1")

	apiGroup.GET("/leaderboard", s.GetLeaderboard)

	agentsGroup := apiGroup.Group("/agents")
	agentsGroup.POST("/register", s.PostRegister)
	agentsGroup.PUT("/status", s.PutStatus, s.agentAuth)
	agentsGroup.GET("/:id/stats", s.GetStats)

	tournamentsGroup := apiGroup.Group("/tournaments")
	tournamentsGroup.GET("/current", s.GetCurrent)
	tournamentsGroup.GET("/history", s.GetHistory)
	tournamentsGroup.GET("/:id/status", s.GetStatus)
	tournamentsGroup.GET("/:id/results", s.GetResults)
	tournamentsGroup.GET("/:id/audit", s.GetAudit)
	tournamentsGroup.GET("/:id/player", s.GetPlayer, s.agentAuth)
	tournamentsGroup.POST("/:id/join", s.PostJoin, s.agentAuth)
	tournamentsGroup.POST("/:id/commit", s.PostCommit, s.agentAuth)
	tournamentsGroup.POST("/:id/reveal", s.PostReveal, s.agentAuth)

	adminGroup := apiGroup.Group("/admin", s.adminAuth)
	adminGroup.POST("/tournaments", s.PostCreate)
	adminGroup.POST("/tournaments/:id/start", s.PostStart)
	adminGroup.POST("/tournaments/:id/cancel", s.PostCancel)
	adminGroup.POST("/tournaments/:id/settle", s.PostSettle)
}

func reject(status int, code string, err error) error {
	return echo.NewHTTPError(status, ErrorBody{Error: code, Message: err.Error()})
}

// fail maps engine errors to a status and their reason code so agents can
// tell a missed deadline from a rejected reveal.
func fail(err error) error {
	switch {
	case errors.Is(err, agent.ErrUnknownKey):
		return reject(http.StatusUnauthorized, "UnknownKey", err)
	case errors.Is(err, agent.ErrWalletTaken):
		return reject(http.StatusConflict, "WalletTaken", err)
	case errors.Is(err, agent.ErrInvalidAgent), errors.Is(err, agent.ErrInvalidStatus):
		return reject(http.StatusBadRequest, "InvalidAgent", err)
	case errors.Is(err, tournament.ErrTournamentNotFound), errors.Is(err, agent.ErrNotFound):
		return reject(http.StatusNotFound, tournament.Reason(err), err)
	}

	status := http.StatusInternalServerError

	switch tournament.Classify(err) {
	case tournament.ClassValidation:
		status = http.StatusBadRequest
	case tournament.ClassTiming, tournament.ClassIntegrity:
		status = http.StatusConflict
	case tournament.ClassSystemic:
		if errors.Is(err, tournament.ErrPaymentNotConfirmed) {
			status = http.StatusBadGateway
		}
	}

	return reject(status, tournament.Reason(err), err)
}

func (s *APIService) agentAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(APIKeyHeader)
		if key == "" {
			return reject(http.StatusUnauthorized, "MissingKey", agent.ErrUnknownKey)
		}

		a, err := s.Agents.Authenticate(key)
		if err != nil {
			return fail(err)
		}

		c.Set(agentContextKey, a)

		return next(c)
	}
}

var ErrAdminDisabled = errors.New("admin token not configured")

func (s *APIService) adminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.AdminToken == "" {
			return reject(http.StatusForbidden, "AdminDisabled", ErrAdminDisabled)
		}

		token := c.Request().Header.Get(AdminTokenHeader)
		if !hmac.Equal([]byte(token), []byte(s.AdminToken)) {
			return echo.NewHTTPError(http.StatusForbidden, "invalid admin token")
		}

		return next(c)
	}
}

func currentAgent(c echo.Context) agent.Agent {
	a, _ := c.Get(agentContextKey).(agent.Agent)

	return a
}

func tournamentID(c echo.Context) (types.TournamentID, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid tournament id")
	}

	return types.TournamentID(id), nil
}

func summarize(t *tournament.Tournament) Summary {
	result := Summary{
		ID:           t.ID,
		Arena:        t.Arena,
		Status:       t.Status,
		EntryFee:     t.EntryFee,
		Pool:         t.Pool().Dec(),
		Players:      len(t.Entries),
		Alive:        len(t.Alive()),
		Capacity:     t.Capacity,
		CurrentRound: t.CurrentRound,
		MaxRounds:    t.MaxRounds,
		CancelReason: t.CancelReason,
		CreatedAt:    t.CreatedAt,
	}

	var deadline time.Time

	switch t.Status {
	case tournament.StatusCommit:
		deadline = t.Round().CommitDeadline
	case tournament.StatusReveal:
		deadline = t.Round().RevealDeadline
	case tournament.StatusActiveNextRound:
		deadline = t.NextRoundAt
	}

	if !deadline.IsZero() {
		result.Deadline = &deadline
	}

	if t.Outcome != nil {
		result.Winner = t.Outcome.Winner
	}

	return result
}

// results hides bids until the tournament is over.
func results(t *tournament.Tournament) Results {
	result := Results{
		Summary:    summarize(t),
		Rounds:     make([]RoundResult, 0, len(t.Rounds)),
		Outcome:    t.Outcome,
		Settlement: t.Settlement,
	}

	for _, r := range t.Rounds {
		rr := RoundResult{
			Number:     r.Number,
			Phase:      r.Phase,
			Players:    len(r.Players),
			Survivors:  r.Survivors,
			Eliminated: r.Eliminated,
		}

		if t.Status.Terminal() {
			rr.Secret = r.Secret
			rr.Standings = r.Standings
		} else {
			// bids, secret, distances and rank order stay hidden until the
			// tournament ends
			for _, st := range r.Standings {
				rr.Standings = append(rr.Standings, ranker.Standing{
					AgentID:  st.AgentID,
					Revealed: st.Revealed,
				})
			}

			slices.SortFunc(rr.Standings, func(a, b ranker.Standing) int {
				return cmp.Compare(a.AgentID, b.AgentID)
			})

			rr.Survivors = slices.Sorted(slices.Values(r.Survivors))
			rr.Eliminated = slices.Sorted(slices.Values(r.Eliminated))
		}

		result.Rounds = append(result.Rounds, rr)
	}

	return result
}

func (s *APIService) GetHealth(c echo.Context) error {
	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"in_play": s.Engine.InPlay(),
	})
}

func (s *APIService) PostRegister(c echo.Context) error {
	var req RegisterRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if !ethcommon.IsHexAddress(req.Wallet) {
		return reject(http.StatusBadRequest, "InvalidAgent", fmt.Errorf("%w: bad wallet address", agent.ErrInvalidAgent))
	}

	creator := ethcommon.Address{}

	if req.Creator != "" {
		if !ethcommon.IsHexAddress(req.Creator) {
			return reject(http.StatusBadRequest, "InvalidAgent", fmt.Errorf("%w: bad creator address", agent.ErrInvalidAgent))
		}

		creator = ethcommon.HexToAddress(req.Creator)
	}

	a, key, err := s.Agents.Register(ethcommon.HexToAddress(req.Wallet), creator, req.Name, s.Now())
	if err != nil {
		return fail(err)
	}

	s.Log.Infof("Registered agent %d %q", a.ID, a.Name)

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, RegisterResponse{Agent: a, APIKey: key})
}

func (s *APIService) PutStatus(c echo.Context) error {
	var req StatusRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := s.Agents.SetStatus(currentAgent(c).ID, req.Status)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, a)
}

func (s *APIService) GetStats(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid agent id")
	}

	a, err := s.Agents.Get(types.AgentID(id))
	if err != nil {
		return fail(err)
	}

	card, err := s.Scorer.Scorecard(a.ID)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, StatsResponse{Agent: a, Scorecard: card})
}

func (s *APIService) GetLeaderboard(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	board, err := s.Scorer.Leaderboard(limit)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]any{"leaderboard": board})
}

func (s *APIService) GetCurrent(c echo.Context) error {
	arena := types.Bronze

	if raw := c.QueryParam("arena"); raw != "" {
		parsed, err := types.ParseArena(raw)
		if err != nil {
			return fail(err)
		}

		arena = parsed
	}

	t, ok := s.Engine.Current(arena)
	if !ok {
		return reject(http.StatusNotFound, "NoActiveTournament",
			fmt.Errorf("%w: no active %s tournament", tournament.ErrTournamentNotFound, arena))
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, summarize(t))
}

func (s *APIService) GetHistory(c echo.Context) error {
	filter := tournament.ListFilter{
		Statuses: []tournament.Status{tournament.StatusFinished, tournament.StatusCancelled},
		Limit:    20,
	}

	if raw := c.QueryParam("arena"); raw != "" {
		arena, err := types.ParseArena(raw)
		if err != nil {
			return fail(err)
		}

		filter.Arena = &arena
	}

	if limit, err := strconv.Atoi(c.QueryParam("limit")); err == nil && limit > 0 {
		filter.Limit = min(limit, 100)
	}

	list := s.Engine.List(filter)

	result := make([]Summary, 0, len(list))
	for _, t := range list {
		result = append(result, summarize(t))
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]any{"tournaments": result})
}

func (s *APIService) GetStatus(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	t, err := s.Engine.Tournament(id)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, summarize(t))
}

func (s *APIService) GetResults(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	t, err := s.Engine.Tournament(id)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, results(t))
}

var ErrAuditUnavailable = errors.New("audit log is published once the tournament is over")

func (s *APIService) GetAudit(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	t, err := s.Engine.Tournament(id)
	if err != nil {
		return fail(err)
	}

	if !t.Status.Terminal() {
		return reject(http.StatusConflict, "AuditUnavailable", ErrAuditUnavailable)
	}

	records, err := s.Engine.Audit(id)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]any{"tournament_id": id, "rounds": records})
}

func (s *APIService) GetPlayer(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	status, err := s.Engine.PlayerStatus(id, currentAgent(c).ID)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, status)
}

func (s *APIService) PostJoin(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	t, err := s.Engine.Join(c.Request().Context(), id, currentAgent(c).ID)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, summarize(t))
}

func (s *APIService) PostCommit(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	var req CommitRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	hash, err := commitment.ParseHash(req.Hash)
	if err != nil {
		return fail(err)
	}

	a := currentAgent(c)

	err = s.Engine.SubmitCommit(c.Request().Context(), id, req.Round, a.ID, hash)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, AcceptedResponse{TournamentID: id, Round: req.Round, AgentID: a.ID, Accepted: true})
}

func (s *APIService) PostReveal(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	var req RevealRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	salt, err := commitment.ParseSalt(req.Salt)
	if err != nil {
		return fail(err)
	}

	a := currentAgent(c)

	err = s.Engine.SubmitReveal(c.Request().Context(), id, req.Round, a.ID, req.Value, salt)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, AcceptedResponse{TournamentID: id, Round: req.Round, AgentID: a.ID, Accepted: true})
}

func (s *APIService) PostCreate(c echo.Context) error {
	var req CreateRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	fee := new(uint256.Int)

	if req.EntryFee != "" {
		fee, err = uint256.FromDecimal(req.EntryFee)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entry fee")
		}
	}

	t, err := s.Engine.Create(c.Request().Context(), req.Arena, fee)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, summarize(t))
}

func (s *APIService) PostStart(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	t, err := s.Engine.Start(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, summarize(t))
}

func (s *APIService) PostCancel(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	var req CancelRequest

	// an empty body means the default reason
	_ = c.Bind(&req)

	t, err := s.Engine.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, summarize(t))
}

func (s *APIService) PostSettle(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	t, err := s.Engine.RetrySettlement(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, results(t))
}
