package catalog_test

import (
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
)

var _ = Describe("SQLLoader", func() {
	var (
		mock   sqlmock.Sqlmock
		loader *catalog.SQLLoader
	)

	BeforeEach(func() {
		db, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		loader = catalog.NewSQLLoader(sqlx.NewDb(db, "sqlmock"))
		DeferCleanup(func() error {
			m.ExpectClose()
			return db.Close()
		})
	})

	It("assembles profiles from the four catalog tables", func() {
		mock.ExpectQuery("SELECT tool_name, platform, category, description FROM tools").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "platform", "category", "description"}).
				AddRow("restart_service", "linux", "service_management", "Restarts a named systemd service.").
				AddRow("disk_report", "linux", "monitoring", "Reports disk usage."))

		mock.ExpectQuery("SELECT tool_name, name, description FROM tool_capabilities").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "name", "description"}).
				AddRow("restart_service", "service_restart", "Restart a running service.").
				AddRow("disk_report", "system_monitoring", "Sample disk usage."))

		mock.ExpectQuery("SELECT tool_name, name, time_ms, cost, accuracy, completeness, complexity, limitations FROM tool_patterns").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "name", "time_ms", "cost", "accuracy", "completeness", "complexity", "limitations"}).
				AddRow("restart_service", "systemctl_restart", 1200.0, 0.01, 0.95, 0.9, 0.2, "requires sudo,linux only"))

		mock.ExpectQuery("SELECT tool_name, category, action FROM tool_intents").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "category", "action"}).
				AddRow("restart_service", "action", "restart_service"))

		profiles, err := loader.LoadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(profiles).To(HaveLen(2))

		Expect(profiles[0].ToolName).To(Equal("restart_service"))
		Expect(profiles[0].Capabilities).To(HaveLen(1))
		Expect(profiles[0].Patterns).To(HaveLen(1))
		Expect(profiles[0].Patterns[0].Vector.Limitations).To(Equal([]string{"requires sudo", "linux only"}))
		Expect(profiles[0].IntentTags).To(HaveLen(1))

		Expect(profiles[1].ToolName).To(Equal("disk_report"))
		Expect(profiles[1].Patterns).To(BeEmpty())

		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("propagates a query failure with the table named", func() {
		mock.ExpectQuery("SELECT tool_name, platform, category, description FROM tools").
			WillReturnError(errAny("connection refused"))

		_, err := loader.LoadAll()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("query tools"))
	})

	It("ignores capability rows that reference an unknown tool", func() {
		mock.ExpectQuery("SELECT tool_name, platform, category, description FROM tools").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "platform", "category", "description"}).
				AddRow("restart_service", "linux", "service_management", "Restarts a named systemd service."))

		mock.ExpectQuery("SELECT tool_name, name, description FROM tool_capabilities").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "name", "description"}).
				AddRow("ghost_tool", "service_restart", "orphan row"))

		mock.ExpectQuery("SELECT tool_name, name, time_ms, cost, accuracy, completeness, complexity, limitations FROM tool_patterns").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "name", "time_ms", "cost", "accuracy", "completeness", "complexity", "limitations"}))

		mock.ExpectQuery("SELECT tool_name, category, action FROM tool_intents").
			WillReturnRows(sqlmock.NewRows([]string{"tool_name", "category", "action"}))

		profiles, err := loader.LoadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(profiles).To(HaveLen(1))
		Expect(profiles[0].Capabilities).To(BeEmpty())
	})
})

type errAny string

func (e errAny) Error() string { return string(e) }
