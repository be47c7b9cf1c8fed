/*
dto.go - JSON shapes for the scan API

PURPOSE:
  Decouples the engine's Response from the wire contract consumed by the
  scanner front-end. Timestamps are RFC 3339; voucher values are decimal
  strings so clients never round money.
*/
package api

import (
	"time"

	"github.com/ldt/voucher-engine/engine"
)

// ActionResponseDTO is the body returned for every processed request.
type ActionResponseDTO struct {
	ResponseCode string      `json:"response_code"`
	Level        string      `json:"level"`
	Status       string      `json:"status"`
	User         *UserDTO    `json:"user,omitempty"`
	Voucher      *VoucherDTO `json:"voucher,omitempty"`
}

// UserDTO is the redacted user snapshot.
type UserDTO struct {
	Token       string `json:"token"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// VoucherDTO is the redacted voucher snapshot.
type VoucherDTO struct {
	Token            string       `json:"token"`
	Value            string       `json:"value"`
	ExpirationAt     string       `json:"expiration_at"`
	CashedinBy       string       `json:"cashedin_by,omitempty"`
	CashedinAt       *string      `json:"cashedin_at,omitempty"`
	UndoExpirationAt *string      `json:"undo_expiration_at,omitempty"`
	History          []HistoryDTO `json:"history"`
}

// HistoryDTO is one redacted ledger row.
type HistoryDTO struct {
	At           string `json:"at"`
	UserLabel    string `json:"user_label"`
	Request      string `json:"request"`
	ResponseCode string `json:"response_code"`
}

func toActionResponseDTO(resp *engine.Response) ActionResponseDTO {
	dto := ActionResponseDTO{
		ResponseCode: string(resp.Code),
		Level:        string(resp.Level),
		Status:       resp.Status,
	}
	if resp.User != nil {
		dto.User = &UserDTO{
			Token:       resp.User.Token,
			Label:       resp.User.Label,
			Description: resp.User.Description,
		}
	}
	if resp.Voucher != nil {
		v := resp.Voucher
		dto.Voucher = &VoucherDTO{
			Token:            v.Token,
			Value:            v.Value.String(),
			ExpirationAt:     v.ExpirationAt.Format(time.RFC3339),
			CashedinBy:       v.CashedinBy,
			CashedinAt:       formatTimePtr(v.CashedinAt),
			UndoExpirationAt: formatTimePtr(v.UndoExpirationAt),
			History:          make([]HistoryDTO, 0, len(v.History)),
		}
		for _, h := range v.History {
			dto.Voucher.History = append(dto.Voucher.History, HistoryDTO{
				At:           h.At.Format(time.RFC3339),
				UserLabel:    h.UserLabel,
				Request:      h.RequestKind,
				ResponseCode: string(h.ResponseCode),
			})
		}
	}
	return dto
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
