package core

import (
	"context"
	"strings"
)

func (s *Service) ListBases(ctx context.Context, ownerUserID string) ([]Base, error) {
	credential, err := s.ownerCredential(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	return s.recordStore.ListBases(ctx, credential)
}

func (s *Service) ListTables(ctx context.Context, ownerUserID string, baseID string) ([]Table, error) {
	if strings.TrimSpace(baseID) == "" {
		return nil, BadInputError("base id is required")
	}
	credential, err := s.ownerCredential(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	return s.recordStore.ListTables(ctx, credential, strings.TrimSpace(baseID))
}

// ListFields returns the fields of a table that forms can bind to.
func (s *Service) ListFields(ctx context.Context, ownerUserID string, baseID string, tableID string) ([]Field, error) {
	if strings.TrimSpace(baseID) == "" || strings.TrimSpace(tableID) == "" {
		return nil, BadInputError("base id and table id are required")
	}
	credential, err := s.ownerCredential(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	return s.recordStore.ListFields(ctx, credential, strings.TrimSpace(baseID), strings.TrimSpace(tableID))
}

func (s *Service) ownerCredential(ctx context.Context, ownerUserID string) (CredentialRecord, error) {
	if err := s.requireDependency(s.recordStore != nil, "record store client"); err != nil {
		return CredentialRecord{}, err
	}
	return s.Credential(ctx, ownerUserID)
}
