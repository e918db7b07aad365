// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/handler"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/service"
)

// CallerHeader carries the identity a command runs as.
const CallerHeader = "X-Caller-Address"

// MaxBodyBytes caps command request bodies.
const MaxBodyBytes = 64 << 10

// CampaignController serves the write side. Each handler runs exactly one
// ledger transaction.
type CampaignController struct {
	CampaignService *service.CampaignService
	validate        *validator.Validate
}

func NewCampaignController(svc *service.CampaignService) *CampaignController {
	return &CampaignController{CampaignService: svc, validate: validator.New()}
}

type createCampaignBody struct {
	Owner       string    `json:"owner" validate:"omitempty,eth_addr"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	TargetUSD   string    `json:"target_usd" validate:"required,numeric"`
	Deadline    time.Time `json:"deadline" validate:"required"`
	Image       string    `json:"image" validate:"omitempty,max=2048"`
}

type editCampaignBody struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Image       *string    `json:"image" validate:"omitempty,max=2048"`
	Deadline    *time.Time `json:"deadline"`
	TargetUSD   *string    `json:"target_usd" validate:"omitempty,numeric"`
}

type donateBody struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

type withdrawCommissionBody struct {
	To     string `json:"to" validate:"omitempty,eth_addr"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type withdrawAllBody struct {
	To string `json:"to" validate:"omitempty,eth_addr"`
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	var body createCampaignBody
	if !c.decode(w, r, &body) {
		return
	}
	target, err := decimal.NewFromString(body.TargetUSD)
	if err != nil {
		handler.WriteError(w, appErrors.NewValidation("invalid target_usd"))
		return
	}
	req := service.CreateCampaignRequest{
		Title:       body.Title,
		Description: body.Description,
		TargetUSD:   target,
		Deadline:    body.Deadline,
		Image:       body.Image,
	}
	if body.Owner != "" {
		req.Owner = common.HexToAddress(body.Owner)
	}

	id, err := c.CampaignService.CreateCampaign(r.Context(), caller, req)
	if err != nil {
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (c *CampaignController) EditCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	id, ok := handler.CampaignIDParam(w, r)
	if !ok {
		return
	}
	var body editCampaignBody
	if !c.decode(w, r, &body) {
		return
	}
	req := service.EditCampaignRequest{
		Title:       body.Title,
		Description: body.Description,
		Image:       body.Image,
		Deadline:    body.Deadline,
	}
	if body.TargetUSD != nil {
		target, err := decimal.NewFromString(*body.TargetUSD)
		if err != nil {
			handler.WriteError(w, appErrors.NewValidation("invalid target_usd"))
			return
		}
		req.TargetUSD = &target
	}

	if err := c.CampaignService.EditCampaign(r.Context(), caller, id, req); err != nil {
		handler.WriteError(w, err)
		return
	}
	details, err := c.CampaignService.GetCampaignDetails(id)
	if err != nil {
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, details)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	id, ok := handler.CampaignIDParam(w, r)
	if !ok {
		return
	}
	if err := c.CampaignService.DeleteCampaign(r.Context(), caller, id); err != nil {
		handler.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) Donate(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	id, ok := handler.CampaignIDParam(w, r)
	if !ok {
		return
	}
	var body donateBody
	if !c.decode(w, r, &body) {
		return
	}
	amount, err := model.ParseAmount(body.Amount)
	if err != nil {
		handler.WriteError(w, appErrors.NewValidation("amount must be a base-10 wei amount"))
		return
	}

	res, err := c.CampaignService.DonateToCampaign(r.Context(), caller, id, amount)
	if err != nil {
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}

func (c *CampaignController) WithdrawFunds(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	id, ok := handler.CampaignIDParam(w, r)
	if !ok {
		return
	}
	amount, err := c.CampaignService.WithdrawFunds(r.Context(), caller, id)
	if err != nil {
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "amount": amount})
}

func (c *CampaignController) WithdrawCommission(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	var body withdrawCommissionBody
	if !c.decode(w, r, &body) {
		return
	}
	amount, err := model.ParseAmount(body.Amount)
	if err != nil {
		handler.WriteError(w, appErrors.NewValidation("amount must be a base-10 wei amount"))
		return
	}

	if err := c.CampaignService.WithdrawCommission(r.Context(), caller, address(body.To), amount); err != nil {
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, c.CampaignService.GetCommissionSummary())
}

func (c *CampaignController) WithdrawAllCommission(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}
	var body withdrawAllBody
	if r.ContentLength != 0 && !c.decode(w, r, &body) {
		return
	}

	amount, err := c.CampaignService.WithdrawAllCommission(r.Context(), caller, address(body.To))
	if err != nil {
		handler.WriteError(w, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

// caller reads the acting identity. Commands without one are rejected before
// reaching the ledger. The zero address owns deleted campaigns and never acts.
func (c *CampaignController) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := r.Header.Get(CallerHeader)
	if err := c.validate.Var(v, "required,eth_addr"); err != nil || common.HexToAddress(v) == (common.Address{}) {
		handler.WriteJSON(w, http.StatusUnauthorized, handler.ErrorBody{
			Error:   "unauthenticated",
			Message: CallerHeader + " must carry a non-zero 0x-prefixed address",
		})
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func (c *CampaignController) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handler.WriteJSON(w, http.StatusRequestEntityTooLarge, handler.ErrorBody{
				Error:   "payload_too_large",
				Message: "request body exceeds the size limit",
			})
			return false
		}
		handler.WriteError(w, appErrors.NewValidation("invalid body: "+err.Error()))
		return false
	}
	if err := c.validate.Struct(dst); err != nil {
		handler.WriteError(w, appErrors.NewValidation(err.Error()))
		return false
	}
	return true
}

func address(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
