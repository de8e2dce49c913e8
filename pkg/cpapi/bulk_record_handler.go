package cpapi

import (
	"net/http"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
)

// bulkRecordRequest mirrors pkg/sync's ControlPlaneClient.PushRecords wire
// shape byte-for-byte ({gateway_id, records}), not the spec's literal
// {gateway_id, decisions} naming — the sync engine already ships that
// shape, and there is only one caller for this endpoint.
type bulkRecordRequest struct {
	GatewayID string          `json:"gateway_id" validate:"required"`
	Records   []ledger.Record `json:"records" validate:"required,min=1,dive"`
}

type rejectedRecord struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type bulkRecordResponse struct {
	AcceptedIDs []string         `json:"accepted_ids"`
	Rejected    []rejectedRecord `json:"rejected"`
}

// handleBulkRecord serves POST /ancestor/bulk-record (spec §6). Master.
// BulkIngest only reports aggregate accepted/deduped counts, so records are
// ingested one at a time to recover per-id accepted/rejected granularity;
// a record the master has already seen within the dedupe window is still
// reported as accepted, since the client's retry of a lost ack must not
// see its own record rejected.
func (s *Server) handleBulkRecord(w http.ResponseWriter, r *http.Request) {
	var req bulkRecordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp := bulkRecordResponse{AcceptedIDs: []string{}, Rejected: []rejectedRecord{}}

	for _, rec := range req.Records {
		result, err := s.deps.Master.BulkIngest(r.Context(), req.GatewayID, []ledger.Record{rec})
		if err != nil {
			resp.Rejected = append(resp.Rejected, rejectedRecord{ID: rec.ID, Reason: err.Error()})
			continue
		}
		resp.AcceptedIDs = append(resp.AcceptedIDs, rec.ID)
		_ = result // Accepted==1 xor Deduped==1 for a single-record batch; both count as accepted here.
	}

	Respond(w, http.StatusOK, resp)
}
