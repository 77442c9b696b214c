// Package report renders sourcing job results into spreadsheet workbooks.
package report

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

var candidateHeader = []string{
	"Rank", "Name", "Headline", "Location", "Profile URL",
	"Match", "Skills", "Experience", "Title", "Industry", "Bonus",
	"Matched Skills", "Missing Skills",
}

// WriteWorkbook writes the job summary and its ranked candidates to an
// XLSX file at path. Candidates are expected in rank order.
func WriteWorkbook(path string, job *model.SourcingJob, candidates []model.CandidateProfile) error {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, job); err != nil {
		return err
	}
	if err := addCandidateSheet(f, candidates); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

func addSummarySheet(f *xlsx.File, job *model.SourcingJob) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	addPair := func(label, value string) {
		row := sheet.AddRow()
		row.AddCell().Value = label
		row.AddCell().Value = value
	}

	addPair("Job ID", job.ID)
	addPair("Title", job.Title)
	addPair("Status", string(job.Status))
	addPair("Profiles Found", fmt.Sprintf("%d", job.TotalProfilesFound))
	addPair("Profiles Saved", fmt.Sprintf("%d", job.ProfilesSaved))
	addPair("Profiles Scored", fmt.Sprintf("%d", job.ProfilesScored))
	addPair("Created", job.CreatedAt.Format("2006-01-02 15:04"))
	if job.CompletedAt != nil {
		addPair("Completed", job.CompletedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func addCandidateSheet(f *xlsx.File, candidates []model.CandidateProfile) error {
	sheet, err := f.AddSheet("Candidates")
	if err != nil {
		return eris.Wrap(err, "report: add candidate sheet")
	}

	header := sheet.AddRow()
	for _, h := range candidateHeader {
		header.AddCell().Value = h
	}

	for i, c := range candidates {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().Value = c.FullName
		row.AddCell().Value = c.Headline
		row.AddCell().Value = c.Location
		row.AddCell().Value = c.ProfileURL

		if c.Scores != nil {
			row.AddCell().SetFloatWithFormat(c.Scores.MatchScore, "0.0")
			row.AddCell().SetFloatWithFormat(c.Scores.SkillsScore, "0.0")
			row.AddCell().SetFloatWithFormat(c.Scores.ExperienceScore, "0.0")
			row.AddCell().SetFloatWithFormat(c.Scores.TitleScore, "0.0")
			row.AddCell().SetFloatWithFormat(c.Scores.IndustryScore, "0.0")
			row.AddCell().SetFloatWithFormat(c.Scores.BonusScore, "0.0")
			row.AddCell().Value = strings.Join(c.Scores.MatchedSkills, ", ")
			row.AddCell().Value = strings.Join(c.Scores.MissingSkills, ", ")
		}
	}
	return nil
}
