package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Flowline/internal/repo"
)

// PutCredential сохраняет или обновляет секрет по ref.
//
// Значение секрета принимается в запросе, но никогда не возвращается
// в ответах API и не пишется в логи.
// PUT /api/v1/credentials
func (h *Handler) PutCredential(w http.ResponseWriter, r *http.Request) {
	var req PutCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Ref == "" {
		BadRequest(w, "ref is required")
		return
	}
	if req.Value == "" {
		BadRequest(w, "value is required")
		return
	}

	cred := &repo.Credential{
		Ref:   req.Ref,
		Name:  req.Name,
		Value: req.Value,
	}

	if HandleRepoError(w, h.logger, h.credentials.Put(r.Context(), cred), "") {
		return
	}

	h.logger.Info("credential stored", "ref", cred.Ref)

	Success(w, CredentialFromRepo(cred))
}

// ListCredentials возвращает список секретов без значений.
// GET /api/v1/credentials
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]CredentialResponse, len(creds))
	for i := range creds {
		result[i] = CredentialFromRepo(&creds[i])
	}

	List(w, result, len(result))
}

// DeleteCredential удаляет секрет по ref.
// DELETE /api/v1/credentials/{ref}
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	if ref == "" {
		BadRequest(w, "ref is required")
		return
	}

	if HandleRepoError(w, h.logger, h.credentials.Delete(r.Context(), ref), "credential not found") {
		return
	}

	h.logger.Info("credential deleted", "ref", ref)

	NoContent(w)
}
