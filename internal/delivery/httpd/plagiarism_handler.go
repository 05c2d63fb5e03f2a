package httpd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scholarr/plagiarism-service/internal/models"
	"github.com/scholarr/plagiarism-service/internal/repository"
	"github.com/scholarr/plagiarism-service/internal/service"
	"github.com/scholarr/plagiarism-service/internal/service/ngram"
	"github.com/scholarr/plagiarism-service/internal/service/textproc"
)

// ListPlagiarism returns every record in which the submission is the agent or the target.
func (h *Handler) ListPlagiarism(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := getInt64URLParam(r, "submission_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Valid submission ID is required")
		return
	}

	response, err := h.reportService.ListBySubmission(r.Context(), submissionID)
	if err != nil {
		h.handlePlagiarismError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// TriggerAnalysis queues an attachment for checking. With ?sync=true the pipeline
// runs inside the request and the outcome is returned.
func (h *Handler) TriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	var req models.TriggerAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}

	ctx := r.Context()

	if getBoolQueryParam(r, "sync") {
		outcome, err := h.plagiarismService.HandleAttachmentLinked(ctx, models.AttachmentLinkedEvent{
			SubmissionID: req.SubmissionID,
			AttachmentID: req.AttachmentID,
		})
		if err != nil {
			h.handlePlagiarismError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, models.TriggerAnalysisResponse{
			Status:       "completed",
			SubmissionID: req.SubmissionID,
			AttachmentID: req.AttachmentID,
			Outcome:      outcome,
		})
		return
	}

	eventID, err := h.plagiarismService.EnqueueAttachment(ctx, req.SubmissionID, req.AttachmentID)
	if err != nil {
		h.logger.Error().Err(err).Int64("submission_id", req.SubmissionID).Msg("Failed to queue attachment")
		writeError(w, http.StatusServiceUnavailable, "Failed to queue attachment")
		return
	}

	writeJSON(w, http.StatusAccepted, models.TriggerAnalysisResponse{
		Status:       "queued",
		EventID:      eventID,
		SubmissionID: req.SubmissionID,
		AttachmentID: req.AttachmentID,
	})
}

func (h *Handler) GetPipelineStatus(w http.ResponseWriter, r *http.Request) {
	attachmentID, ok := getInt64URLParam(r, "attachment_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Valid attachment ID is required")
		return
	}

	status, err := h.reportService.GetStatus(r.Context(), attachmentID)
	if err != nil {
		h.handlePlagiarismError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CleanupArtifacts(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := getInt64URLParam(r, "submission_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Valid submission ID is required")
		return
	}

	response, err := h.plagiarismService.CleanupSubmission(r.Context(), submissionID, nil)
	if err != nil {
		h.handlePlagiarismError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handlePlagiarismError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "Submission or attachment not found")
	case errors.Is(err, service.ErrStatusUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrNoClasswork):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, textproc.ErrUnsupportedDocument),
		errors.Is(err, ngram.ErrEmptyText),
		errors.Is(err, ngram.ErrSequenceTooShort):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, textproc.ErrExtractionFailed):
		h.logger.Error().Err(err).Msg("Text extraction error")
		writeError(w, http.StatusUnprocessableEntity, "Attachment text could not be extracted")
	default:
		h.logger.Error().Err(err).Msg("Plagiarism error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
