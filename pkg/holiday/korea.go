package holiday

// Korean public holidays, including substitute and temporary days off.
var koreanHolidays = []Entry{
	// 2024
	{Date: "2024-01-01", Name: "신정", IsNational: true},
	{Date: "2024-02-09", Name: "설날 연휴", IsNational: true},
	{Date: "2024-02-10", Name: "설날", IsNational: true},
	{Date: "2024-02-11", Name: "설날 연휴", IsNational: true},
	{Date: "2024-02-12", Name: "대체공휴일(설날)", IsNational: true},
	{Date: "2024-03-01", Name: "삼일절", IsNational: true},
	{Date: "2024-04-10", Name: "국회의원선거일", IsNational: true},
	{Date: "2024-05-05", Name: "어린이날", IsNational: true},
	{Date: "2024-05-06", Name: "대체공휴일(어린이날)", IsNational: true},
	{Date: "2024-05-15", Name: "부처님오신날", IsNational: true},
	{Date: "2024-06-06", Name: "현충일", IsNational: true},
	{Date: "2024-08-15", Name: "광복절", IsNational: true},
	{Date: "2024-09-16", Name: "추석 연휴", IsNational: true},
	{Date: "2024-09-17", Name: "추석", IsNational: true},
	{Date: "2024-09-18", Name: "추석 연휴", IsNational: true},
	{Date: "2024-10-01", Name: "국군의 날", IsNational: false},
	{Date: "2024-10-03", Name: "개천절", IsNational: true},
	{Date: "2024-10-09", Name: "한글날", IsNational: true},
	{Date: "2024-12-25", Name: "성탄절", IsNational: true},

	// 2025
	{Date: "2025-01-01", Name: "신정", IsNational: true},
	{Date: "2025-01-27", Name: "임시공휴일", IsNational: false},
	{Date: "2025-01-28", Name: "설날 연휴", IsNational: true},
	{Date: "2025-01-29", Name: "설날", IsNational: true},
	{Date: "2025-01-30", Name: "설날 연휴", IsNational: true},
	{Date: "2025-03-01", Name: "삼일절", IsNational: true},
	{Date: "2025-03-03", Name: "대체공휴일(삼일절)", IsNational: true},
	{Date: "2025-05-05", Name: "어린이날", IsNational: true},
	{Date: "2025-05-05", Name: "부처님오신날", IsNational: true},
	{Date: "2025-05-06", Name: "대체공휴일(부처님오신날)", IsNational: true},
	{Date: "2025-06-03", Name: "대통령선거일", IsNational: true},
	{Date: "2025-06-06", Name: "현충일", IsNational: true},
	{Date: "2025-08-15", Name: "광복절", IsNational: true},
	{Date: "2025-10-03", Name: "개천절", IsNational: true},
	{Date: "2025-10-05", Name: "추석 연휴", IsNational: true},
	{Date: "2025-10-06", Name: "추석", IsNational: true},
	{Date: "2025-10-07", Name: "추석 연휴", IsNational: true},
	{Date: "2025-10-08", Name: "대체공휴일(추석)", IsNational: true},
	{Date: "2025-10-09", Name: "한글날", IsNational: true},
	{Date: "2025-12-25", Name: "성탄절", IsNational: true},

	// 2026
	{Date: "2026-01-01", Name: "신정", IsNational: true},
	{Date: "2026-02-16", Name: "설날 연휴", IsNational: true},
	{Date: "2026-02-17", Name: "설날", IsNational: true},
	{Date: "2026-02-18", Name: "설날 연휴", IsNational: true},
	{Date: "2026-03-01", Name: "삼일절", IsNational: true},
	{Date: "2026-03-02", Name: "대체공휴일(삼일절)", IsNational: true},
	{Date: "2026-05-05", Name: "어린이날", IsNational: true},
	{Date: "2026-05-24", Name: "부처님오신날", IsNational: true},
	{Date: "2026-05-25", Name: "대체공휴일(부처님오신날)", IsNational: true},
	{Date: "2026-06-03", Name: "전국동시지방선거일", IsNational: true},
	{Date: "2026-06-06", Name: "현충일", IsNational: true},
	{Date: "2026-08-15", Name: "광복절", IsNational: true},
	{Date: "2026-08-17", Name: "대체공휴일(광복절)", IsNational: true},
	{Date: "2026-09-24", Name: "추석 연휴", IsNational: true},
	{Date: "2026-09-25", Name: "추석", IsNational: true},
	{Date: "2026-09-26", Name: "추석 연휴", IsNational: true},
	{Date: "2026-10-03", Name: "개천절", IsNational: true},
	{Date: "2026-10-05", Name: "대체공휴일(개천절)", IsNational: true},
	{Date: "2026-10-09", Name: "한글날", IsNational: true},
	{Date: "2026-12-25", Name: "성탄절", IsNational: true},
}
