package sut

// DefaultKnowledgeBase returns the built-in SUT rulebook. Drug keys are
// matched against the leading token of the normalized drug name, by prefix
// first and substring second.
func DefaultKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		Drugs: map[string]DrugRequirement{
			"VEMLIDY": {
				RequiredDiagnoses:   []string{"B18.1", "B18.0"},
				Category:            "antiviral",
				ReportRequired:      true,
				AllowedMessageCodes: []string{"1013"},
				MaxDurationMonths:   12,
			},
			"TENOFOVIR": {
				RequiredDiagnoses:   []string{"B18.1", "B18.0"},
				Category:            "antiviral",
				ReportRequired:      true,
				AllowedMessageCodes: []string{"1013"},
				MaxDurationMonths:   12,
			},
			"BARACLUDE": {
				RequiredDiagnoses:   []string{"B18.1"},
				Category:            "antiviral",
				ReportRequired:      true,
				AllowedMessageCodes: []string{"1013"},
				MaxDurationMonths:   12,
			},
			"HUMIRA": {
				RequiredDiagnoses:   []string{"M45", "L40", "K50"},
				Category:            "biologic",
				ReportRequired:      true,
				AllowedMessageCodes: []string{"1301"},
				MaxDurationMonths:   6,
				Contraindications:   []string{"active tuberculosis", "sepsis"},
			},
			"ENBREL": {
				RequiredDiagnoses:   []string{"M45", "L40", "M06"},
				Category:            "biologic",
				ReportRequired:      true,
				AllowedMessageCodes: []string{"1301"},
				MaxDurationMonths:   6,
				Contraindications:   []string{"active tuberculosis"},
			},
			"CLEXANE": {
				RequiredDiagnoses: []string{"I26", "I80", "O22"},
				Category:          "anticoagulant",
				ReportRequired:    false,
				MaxDurationMonths: 3,
			},
			"CRESTOR": {
				RequiredDiagnoses:   []string{"E78"},
				Category:            "statin",
				ReportRequired:      false,
				AllowedMessageCodes: []string{"4002"},
			},
			"NEXIUM": {
				RequiredDiagnoses:   []string{"K21", "K25", "K26"},
				Category:            "ppi",
				ReportRequired:      false,
				AllowedMessageCodes: []string{"1016"},
			},
		},
		Messages: map[string]MessageMetadata{
			"1013": {
				Description:    "Chronic hepatitis B treatment, specialist report required",
				SutSection:     "4.2.13",
				ReportRequired: true,
				Constraints:    "prescribed by gastroenterology or infectious diseases",
			},
			"1301": {
				Description:    "Biologic agent, rheumatology/dermatology report required",
				SutSection:     "4.2.1.C",
				ReportRequired: true,
			},
			"1016": {
				Description: "Proton pump inhibitor beyond 4 weeks",
				SutSection:  "4.2.33",
			},
			"4002": {
				Description: "Statin therapy, LDL threshold documentation",
				SutSection:  "4.2.28",
			},
		},
		General: GeneralRules{
			MaxPrescriptionAgeDays: 4,
			RequirePatientID:       true,
		},
	}
}
