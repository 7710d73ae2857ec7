package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dialogkit/treeflow/pkg/graph"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// rejectionType maps a connection rejection reason to a problem type the UI
// can branch on.
func rejectionType(err error) string {
	switch {
	case errors.Is(err, graph.ErrSelfLoop):
		return "self_loop"
	case errors.Is(err, graph.ErrOutputAlreadyConnected):
		return "output_already_connected"
	case errors.Is(err, graph.ErrDuplicateConnection):
		return "duplicate_connection"
	default:
		return "connection_rejected"
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsConnectionRejected(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType(rejectionType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case persistence.IsTreeFlowNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("tree_flow_not_found").
			WithDetail("tree flow not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsStepNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("step_not_found").
			WithDetail("step not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, persistence.ErrInputNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("input_not_found").
			WithDetail("step input not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, persistence.ErrOutputNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("output_not_found").
			WithDetail("step output not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsConnectionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("connection_not_found").
			WithDetail("step connection not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
