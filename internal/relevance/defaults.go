package relevance

// DefaultKeywords is the vocabulary used when the catalogue leaves a list empty.
func DefaultKeywords() Keywords {
	return Keywords{
		IndiaMarkers: []string{
			"india", "indian", "delhi", "mumbai", "bangalore", "bengaluru", "chennai", "kolkata", "hyderabad", "pune", "ahmedabad",
			"uttar pradesh", "madhya pradesh", "haryana", "gujarat", "rajasthan", "odisha", "jharkhand",
			"himachal pradesh", "maharashtra", "bihar", "tamil nadu", "karnataka", "andhra pradesh",
			"telangana", "kerala", "west bengal", "punjab", "assam", "chhattisgarh", "uttarakhand",
			"goa", "tripura", "meghalaya", "manipur", "nagaland", "mizoram", "sikkim", "arunachal pradesh",
			"south asia", "subcontinent", "developing countr", "lmic", "low-income countr",
			"global south", "asia-pacific",
		},
		EducationPhrases: []string{
			"education", "school", "teacher", "literacy", "numeracy", "edtech", "ed-tech",
			"classroom", "scholarship", "fellowship", "anganwadi", "early childhood", "ecce",
			"pedagog", "curriculum", "skill development", "k-12", "foundational learning",
			"foundational literacy", "foundational numeracy",
		},
		EducationTokens: []string{"fln", "stem", "learning", "student", "academic", "training"},
		ForeignCountries: []string{
			"pakistan", "bangladesh", "sri lanka", "nepal", "afghanistan",
			"united states", "united kingdom", "canada", "australia",
			"philippines", "indonesia", "malaysia", "thailand", "vietnam",
			"nigeria", "kenya", "south africa", "brazil", "mexico",
			"china", "japan", "korea", "taiwan",
		},
		NegativeKeywords: []string{
			"veterinary", "livestock", "poultry", "fisheries", "petroleum", "oil and gas",
			"mining", "military", "defence", "defense", "weapon", "tobacco",
		},
		RecencyMonths: 3,
	}
}

// WithDefaults fills every empty list of k from DefaultKeywords.
func (k Keywords) WithDefaults() Keywords {
	d := DefaultKeywords()
	if len(k.IndiaMarkers) == 0 {
		k.IndiaMarkers = d.IndiaMarkers
	}
	if len(k.EducationPhrases) == 0 {
		k.EducationPhrases = d.EducationPhrases
	}
	if len(k.EducationTokens) == 0 {
		k.EducationTokens = d.EducationTokens
	}
	if len(k.ForeignCountries) == 0 {
		k.ForeignCountries = d.ForeignCountries
	}
	if len(k.NegativeKeywords) == 0 {
		k.NegativeKeywords = d.NegativeKeywords
	}
	if k.RecencyMonths <= 0 {
		k.RecencyMonths = d.RecencyMonths
	}
	return k
}
