package scoring

func DefaultWeights() Weights {
	return Weights{
		Sector:          30,
		Geography:       20,
		FundingSize:     20,
		KnownFunder:     15,
		Duration:        15,
		DecayPerWeek:    5,
		HighThreshold:   75,
		MediumThreshold: 50,
	}
}

var defaultSectors = []string{
	"FLN", "Foundational Literacy", "Foundational Numeracy", "Foundational Learning",
	"School Governance", "EdTech", "Early Childhood", "Classroom Instruction",
	"High Potential Students", "Education", "Teacher Training",
}

var defaultPriorityStates = []string{
	"Punjab", "Haryana", "Uttar Pradesh", "Telangana", "Odisha",
	"Assam", "Bihar", "Himachal Pradesh", "Gujarat",
}

var defaultKnownFunders = []string{
	"bajaj", "british asian trust", "campus", "datla", "marshall", "ey foundation",
	"founders pledge", "gates foundation", "bill & melinda gates", "google.org", "havells",
	"hdfc", "parivartan", "kalinga", "lt foods", "maitri trust", "motivation for excellence",
	"mohanlal bhartia", "michael & susan dell", "dell foundation", "mubadala", "nalanda",
	"natco", "prevail fund", "reliance foundation", "steadview", "tarsadia", "ubs optimus",
	"azim premji", "wipro foundation", "infosys foundation", "tata trusts", "tata steel",
	"adani foundation", "bharti foundation", "ikea foundation", "mastercard foundation",
	"hewlett foundation", "children's investment fund", "ciff", "omidyar network",
	"mulago foundation", "packard foundation", "ford foundation", "macarthur foundation",
	"rockefeller", "skoll foundation", "echidna giving", "lego foundation", "aga khan foundation",
	"open society", "soros", "unicef", "world bank", "dfid", "usaid", "save the children",
	"room to read", "pratham", "mahindra", "godrej", "kotak", "hero", "birla", "ambani",
	"ultratech", "larsen", "hindalco", "jsw", "vedanta", "cipla foundation", "dr reddy",
	"sun pharma", "sbi foundation", "hcl foundation", "tech mahindra",
}

// DefaultConfig returns the stock sector, state and funder lists with DefaultWeights.
func DefaultConfig() Config {
	return Config{
		Sectors:        append([]string(nil), defaultSectors...),
		PriorityStates: append([]string(nil), defaultPriorityStates...),
		KnownFunders:   append([]string(nil), defaultKnownFunders...),
		Weights:        DefaultWeights(),
	}
}

// WithDefaults fills empty lists and an all-zero Weights from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if len(c.Sectors) == 0 {
		c.Sectors = d.Sectors
	}
	if len(c.PriorityStates) == 0 {
		c.PriorityStates = d.PriorityStates
	}
	if len(c.KnownFunders) == 0 {
		c.KnownFunders = d.KnownFunders
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	return c
}
