package board

import (
	"time"

	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// DefaultUsers is the fixed team shown on a fresh board.
var DefaultUsers = []models.User{
	{ID: "user-1", Name: "Alex Reid", AvatarURL: "https://picsum.photos/seed/alex/40/40"},
	{ID: "user-2", Name: "Casey Jordan", AvatarURL: "https://picsum.photos/seed/casey/40/40"},
	{ID: "user-3", Name: "Morgan Lee", AvatarURL: "https://picsum.photos/seed/morgan/40/40"},
	{ID: "user-4", Name: "Taylor Quinn", AvatarURL: "https://picsum.photos/seed/taylor/40/40"},
}

// SeedProject builds the demo board with dates relative to now. Task 3 has a
// reminder one minute out so notifications can be seen right away.
func SeedProject(now time.Time) *models.Project {
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format(models.DueDateLayout)
	}
	reminder := now.Add(time.Minute).UTC()

	tasks := []models.Task{
		{
			ID:          "task-1",
			Title:       "Design landing page mockup",
			Description: "Create a high-fidelity mockup for the new landing page using Figma. Focus on a clean, modern aesthetic and intuitive user flow. Include sections for features, testimonials, and pricing.",
			AssignedTo:  "user-1",
			DueDate:     day(5),
			Priority:    models.PriorityMedium,
			Comments: []models.Comment{{
				ID:        "comment-1",
				UserID:    "user-2",
				Text:      "Great, I will start on the copy once the design is approved.",
				Timestamp: now.Add(-24 * time.Hour).UTC(),
			}},
			Subtasks: []models.Subtask{
				{ID: "sub-1-1", Text: "Research competitor landing pages", Completed: true},
				{ID: "sub-1-2", Text: "Wireframe layout options", Completed: true},
				{ID: "sub-1-3", Text: "Design final mockup"},
			},
		},
		{
			ID:          "task-2",
			Title:       "Develop authentication API",
			Description: "Build out the REST API endpoints for user registration, login, and password reset. Ensure all endpoints are secure and properly documented.",
			AssignedTo:  "user-3",
			Priority:    models.PriorityHigh,
		},
		{
			ID:          "task-3",
			Title:       "Set up CI/CD pipeline",
			Description: "Configure a continuous integration and continuous deployment pipeline using GitHub Actions to automate testing and deployment to the staging server.",
			AssignedTo:  "user-3",
			DueDate:     day(-2),
			ReminderAt:  &reminder,
			Priority:    models.PriorityHigh,
			Subtasks: []models.Subtask{
				{ID: "sub-3-1", Text: "Create build script"},
				{ID: "sub-3-2", Text: "Configure deployment secrets"},
			},
		},
		{
			ID:          "task-4",
			Title:       "Write blog post about Q2 features",
			Description: "Draft a blog post announcing the new features launched in the second quarter. Highlight the benefits for our users and include screenshots.",
			AssignedTo:  "user-2",
			Priority:    models.PriorityLow,
		},
		{
			ID:          "task-5",
			Title:       "QA testing for mobile responsive views",
			Description: "Perform thorough quality assurance testing on all major pages to ensure they are fully responsive and functional on various mobile devices (iOS and Android).",
			AssignedTo:  "user-4",
			DueDate:     day(10),
			Priority:    models.PriorityMedium,
		},
		{
			ID:          "task-6",
			Title:       "Deploy database schema updates",
			Description: "Apply the latest migration scripts to the production database. Ensure a backup is created before starting the process.",
		},
		{
			ID:          "task-7",
			Title:       "Review user feedback from survey",
			Description: "Analyze the results from the latest user satisfaction survey and compile a report with key takeaways and actionable insights for the product team.",
			AssignedTo:  "user-1",
			Priority:    models.PriorityLow,
		},
	}

	p := &models.Project{
		Tasks: make(map[string]models.Task, len(tasks)),
		Columns: map[string]models.Column{
			"column-1": {ID: "column-1", Title: "Backlog", TaskIDs: []string{"task-1", "task-2", "task-4"}},
			"column-2": {ID: "column-2", Title: "In Progress", TaskIDs: []string{"task-3"}},
			"column-3": {ID: "column-3", Title: "In Review", TaskIDs: []string{"task-5"}},
			"column-4": {ID: "column-4", Title: "Done", TaskIDs: []string{"task-6", "task-7"}},
		},
		ColumnOrder: []string{"column-1", "column-2", "column-3", "column-4"},
	}
	for _, t := range tasks {
		if t.Comments == nil {
			t.Comments = []models.Comment{}
		}
		if t.Subtasks == nil {
			t.Subtasks = []models.Subtask{}
		}
		p.Tasks[t.ID] = t
	}
	return p
}
