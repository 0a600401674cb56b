package validation

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validation", func() {
	Describe("ValidateUserRequest", func() {
		Context("with valid request text", func() {
			It("should pass validation", func() {
				err := ValidateUserRequest("restart nginx on web-prod-01")
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when request is empty", func() {
			It("should return validation error", func() {
				err := ValidateUserRequest("   ")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("request text is required"))
			})
		})

		Context("when request exceeds the maximum length", func() {
			It("should return validation error", func() {
				err := ValidateUserRequest(strings.Repeat("a", maxRequestLength+1))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("4000 characters or less"))
			})
		})
	})

	Describe("ValidateSessionID", func() {
		Context("with a valid id", func() {
			It("should pass validation", func() {
				err := ValidateSessionID("session-123_abc")
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when empty", func() {
			It("should return validation error", func() {
				err := ValidateSessionID("")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("session id is required"))
			})
		})

		Context("when it has invalid characters", func() {
			It("should return validation error", func() {
				err := ValidateSessionID("session with spaces")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid characters"))
			})
		})
	})

	Describe("ValidateTenantID", func() {
		Context("when empty", func() {
			It("should return validation error", func() {
				err := ValidateTenantID("")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("tenant id is required"))
			})
		})
	})

	Describe("StepDependencyOrder", func() {
		ids := []string{"step-1", "step-2", "step-3"}

		Context("when dependency is earlier", func() {
			It("should pass validation", func() {
				err := StepDependencyOrder(ids, 2, []string{"step-1", "step-2"})
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when dependency references itself or a later step", func() {
			It("should return validation error", func() {
				err := StepDependencyOrder(ids, 1, []string{"step-3"})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not an earlier step"))
			})
		})
	})
})
