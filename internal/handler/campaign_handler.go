// internal/handler/campaign_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/service"
)

// CampaignHandler serves the read side. Every response is built from the
// last committed snapshot.
type CampaignHandler struct {
	Service *service.CampaignService
}

func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// ListCampaigns returns a paginated list, newest first. active=true lists
// every campaign that is not deleted instead.
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("active") == "true" {
		campaigns := h.Service.GetActiveCampaigns()
		WriteJSON(w, http.StatusOK, map[string]any{"data": campaigns})
		return
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	campaigns, pagination := h.Service.ListCampaigns(page, pageSize, q.Get("status"))
	WriteJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := CampaignIDParam(w, r)
	if !ok {
		return
	}
	details, err := h.Service.GetCampaignDetails(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

type donatorsResponse struct {
	CampaignID int                    `json:"campaign_id"`
	Donators   []string               `json:"donators"`
	Donations  []*uint256.Int         `json:"donations"`
	Shares     []service.DonatorShare `json:"shares"`
}

// GetDonators returns the donor history as parallel lists plus each
// donation's share of the total.
func (h *CampaignHandler) GetDonators(w http.ResponseWriter, r *http.Request) {
	id, ok := CampaignIDParam(w, r)
	if !ok {
		return
	}
	donators, amounts, err := h.Service.GetDonatorsOfCampaign(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	shares, err := h.Service.GetDonatorShares(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	resp := donatorsResponse{
		CampaignID: id,
		Donators:   make([]string, len(donators)),
		Donations:  amounts,
		Shares:     shares,
	}
	for i, d := range donators {
		resp.Donators[i] = d.Hex()
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *CampaignHandler) GetRemaining(w http.ResponseWriter, r *http.Request) {
	id, ok := CampaignIDParam(w, r)
	if !ok {
		return
	}
	remaining, err := h.Service.RemainingToRaise(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "remaining": remaining})
}

func (h *CampaignHandler) GetCommission(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Service.GetCommissionSummary())
}

// GetJournal pages through committed transactions: after is the last seq the
// client has seen.
func (h *CampaignHandler) GetJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if s := q.Get("after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			WriteError(w, appErrors.NewValidation("after must be a sequence number"))
			return
		}
		after = v
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": h.Service.Journal(after, limit)})
}

func (h *CampaignHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.VerifyJournal(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "corrupt", "error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "seq": h.Service.LastCommittedSeq()})
}

// CampaignIDParam parses the {id} route parameter, writing a 400 when it is
// malformed.
func CampaignIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		WriteError(w, appErrors.NewValidation("invalid campaign id"))
		return 0, false
	}
	return id, true
}
